package model

import "github.com/google/uuid"

type CandidateLabel string

const (
	LabelUnclassified CandidateLabel = ""
	LabelRealPerson   CandidateLabel = "real_person"
	LabelFictional    CandidateLabel = "fictional"
)

// Candidate represents a single person mention extracted from a document.
// It accumulates stage outputs while it moves through the pipeline.
type Candidate struct {
	DocumentRID   uuid.UUID         `json:"document_rid"`
	DocumentTitle string            `json:"document_title"`
	Depth         int               `json:"depth"`
	Name          string            `json:"name"`
	Mention       string            `json:"mention,omitempty"` // Surrounding text the name was found in
	RawAttributes map[string]string `json:"raw_attributes,omitempty"`
	Links         []Link            `json:"links,omitempty"`
	Confidence    float64           `json:"confidence"`
	// Stage results
	Label           CandidateLabel        `json:"label,omitempty"`
	LabelConfidence float64               `json:"label_confidence,omitempty"`
	Attributes      *StructuredAttributes `json:"attributes,omitempty"`
}
