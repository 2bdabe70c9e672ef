package domain

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who triggered a snapshot. UserID is a weak reference.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

// FieldSnapshot is one immutable version of a section's field list.
type FieldSnapshot struct {
	ID          uuid.UUID      `json:"id"`
	SectionRef  uuid.UUID      `json:"sectionRef"`
	SectionName string         `json:"sectionName"`
	Version     int64          `json:"version"`
	Timestamp   time.Time      `json:"timestamp"`
	Fields      []Field        `json:"fields"`
	Actor       Actor          `json:"actor"`
	ClientInfo  map[string]any `json:"clientInfo,omitempty"`
}

// Clone returns a deep copy of the snapshot's mutable state.
func (s FieldSnapshot) Clone() FieldSnapshot {
	out := s
	out.Fields = CloneFields(s.Fields)
	if s.ClientInfo != nil {
		out.ClientInfo = maps.Clone(s.ClientInfo)
	}
	return out
}
