package model

import "time"

// RunState represents the phase a discovery run is in
type RunState string

const (
	StateSeeding     RunState = "seeding"
	StateFetching    RunState = "fetching"
	StateExtracting  RunState = "extracting"
	StateClassifying RunState = "classifying"
	StateStructuring RunState = "structuring"
	StateResolving   RunState = "resolving"
	StateEnqueueing  RunState = "enqueueing"
	StateDone        RunState = "done"
	StateAborted     RunState = "aborted"
)

// StageFailure records a non-fatal failure of one document at one stage
type StageFailure struct {
	Target string `json:"target"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// RunReport summarizes a finished discovery run
type RunReport struct {
	State             RunState             `json:"state"`
	Documents         int                  `json:"documents"`
	Candidates        int                  `json:"candidates"`
	EntitiesByStatus  map[EntityStatus]int `json:"entities_by_status"`
	FrontierRemaining int                  `json:"frontier_remaining"`
	Failures          []StageFailure       `json:"failures,omitempty"`
	Started           time.Time            `json:"started"`
	Duration          time.Duration        `json:"duration"`
}
