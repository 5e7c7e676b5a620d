package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type EntityStatus string

const (
	StatusCandidate   EntityStatus = "candidate"
	StatusConfirmed   EntityStatus = "confirmed"
	StatusNeedsReview EntityStatus = "needs_review"
	StatusRejected    EntityStatus = "rejected"
)

// FieldConflict records an alternate value that lost a merge, kept around
// for human review.
type FieldConflict struct {
	Field       Field     `json:"field"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	DocumentRID uuid.UUID `json:"document_rid"`
}

// Entity represents a resolved person assembled from one or more documents.
// Name and Aliases are the canonical identifiers, Attributes carries the
// remaining merged fields.
type Entity struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Aliases        []string             `json:"aliases,omitempty"`
	Attributes     StructuredAttributes `json:"attributes"`
	Status         EntityStatus         `json:"status"`
	Provenance     []uuid.UUID          `json:"provenance"`
	Conflicts      []FieldConflict      `json:"conflicts,omitempty"`
	ReviewRefs     []uuid.UUID          `json:"review_refs,omitempty"`
	RejectedReason string               `json:"rejected_reason,omitempty"`
	Embedding      []float32            `json:"embedding,omitempty"`
	Similarity     float64              `json:"similarity,omitempty"`
	Metadata       Metadata             `json:"metadata,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// HasProvenance reports whether the document already contributed to the entity.
func (e *Entity) HasProvenance(rid uuid.UUID) bool {
	for _, existing := range e.Provenance {
		if existing == rid {
			return true
		}
	}
	return false
}

// AddProvenance appends the document to the provenance set. It reports
// whether the set changed.
func (e *Entity) AddProvenance(rid uuid.UUID) bool {
	if e.HasProvenance(rid) {
		return false
	}
	e.Provenance = append(e.Provenance, rid)
	return true
}

// AddAlias appends an alias to the ordered alias set. The canonical name and
// existing aliases are matched case insensitively. It reports whether the set
// changed.
func (e *Entity) AddAlias(alias string) bool {
	alias = strings.TrimSpace(alias)
	if alias == "" || strings.EqualFold(alias, e.Name) {
		return false
	}
	for _, existing := range e.Aliases {
		if strings.EqualFold(existing, alias) {
			return false
		}
	}
	e.Aliases = append(e.Aliases, alias)
	return true
}

// AddReviewRef links another entity for review. It reports whether the set
// changed.
func (e *Entity) AddReviewRef(id uuid.UUID) bool {
	for _, existing := range e.ReviewRefs {
		if existing == id {
			return false
		}
	}
	e.ReviewRefs = append(e.ReviewRefs, id)
	return true
}

// AllNames returns the canonical name followed by all aliases.
func (e *Entity) AllNames() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.Name)
	names = append(names, e.Aliases...)
	return names
}

// Active reports whether the entity takes part in match lookups. Entities
// under review and rejected ones no longer absorb new mentions.
func (e *Entity) Active() bool {
	return e.Status == StatusCandidate || e.Status == StatusConfirmed
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Attributes = e.Attributes.Clone()
	if e.Aliases != nil {
		out.Aliases = make([]string, len(e.Aliases))
		copy(out.Aliases, e.Aliases)
	}
	if e.Provenance != nil {
		out.Provenance = make([]uuid.UUID, len(e.Provenance))
		copy(out.Provenance, e.Provenance)
	}
	if e.Conflicts != nil {
		out.Conflicts = make([]FieldConflict, len(e.Conflicts))
		copy(out.Conflicts, e.Conflicts)
	}
	if e.ReviewRefs != nil {
		out.ReviewRefs = make([]uuid.UUID, len(e.ReviewRefs))
		copy(out.ReviewRefs, e.ReviewRefs)
	}
	if e.Embedding != nil {
		out.Embedding = make([]float32, len(e.Embedding))
		copy(out.Embedding, e.Embedding)
	}
	if e.Metadata != nil {
		out.Metadata = make(Metadata, len(e.Metadata))
		for key, value := range e.Metadata {
			out.Metadata[key] = value
		}
	}
	return &out
}
