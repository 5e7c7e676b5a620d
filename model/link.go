package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentLink is a stored outbound reference of a fetched document. It ties
// a link target back to the exact fetch that produced it, so inbound
// references can be traced per run.
type DocumentLink struct {
	ID           int64     `json:"id"`
	DocumentRID  uuid.UUID `json:"document_rid"`
	Target       string    `json:"target"`
	Relationship string    `json:"relationship,omitempty"`
	Depth        int       `json:"depth"`
	CreatedAt    time.Time `json:"created_at"`
}
