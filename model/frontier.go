package model

import "github.com/google/uuid"

// PriorityBand orders frontier entries by the standing of the entity that
// discovered them. Lower bands are crawled first.
type PriorityBand int

const (
	BandConfirmed PriorityBand = iota
	BandCandidate
	BandUnattributed
)

// FrontierEntry represents a link scheduled for crawling
type FrontierEntry struct {
	Target       string       `json:"target"`
	Depth        int          `json:"depth"`
	Band         PriorityBand `json:"band"`
	DiscoveredBy uuid.UUID    `json:"discovered_by,omitempty"` // Entity the link was attached to, uuid.Nil for document level links
	Relationship string       `json:"relationship,omitempty"`
}
