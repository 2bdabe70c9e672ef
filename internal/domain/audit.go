package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType classifies an audit entry.
type OperationType string

const (
	OperationInsert OperationType = "insert"
	OperationUpdate OperationType = "update"
)

// AuditFilter narrows the global snapshot feed. Bounds are inclusive.
type AuditFilter struct {
	From   *time.Time
	To     *time.Time
	UserID *uuid.UUID
	Role   string
}

// WithWindow returns a copy of the filter whose time range is intersected with [from, to].
func (f AuditFilter) WithWindow(from, to time.Time) AuditFilter {
	out := f
	if out.From == nil || out.From.Before(from) {
		lower := from
		out.From = &lower
	}
	if out.To == nil || out.To.After(to) {
		upper := to
		out.To = &upper
	}
	return out
}

// AuditQuery is a filter plus the requested page.
type AuditQuery struct {
	Filter AuditFilter
	Page   int
	Limit  int
}

// AuditEntry is one snapshot resolved for administrative review.
type AuditEntry struct {
	ID            uuid.UUID      `json:"id"`
	SectionRef    uuid.UUID      `json:"sectionRef"`
	SectionName   string         `json:"sectionName"`
	Version       int64          `json:"version"`
	Timestamp     time.Time      `json:"timestamp"`
	OperationType OperationType  `json:"operationType"`
	Actor         Actor          `json:"actor"`
	User          *UserIdentity  `json:"user"`
	ClientInfo    map[string]any `json:"clientInfo,omitempty"`
	Fields        []Field        `json:"fields"`
	Changes       []FieldChange  `json:"changes"`
}

// Pagination describes the returned window of a paged result.
type Pagination struct {
	Total       int64 `json:"total"`
	Pages       int64 `json:"pages"`
	CurrentPage int   `json:"currentPage"`
	Limit       int   `json:"limit"`
}

// NewPagination computes the page count for total matching records.
func NewPagination(total int64, page, limit int) Pagination {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{Total: total, Pages: pages, CurrentPage: page, Limit: limit}
}

// ActorOption is one selectable actor in the audit filter UI.
type ActorOption struct {
	UserID uuid.UUID     `json:"userId"`
	User   *UserIdentity `json:"user"`
}

// FilterOptions lists the values the audit filters can take.
type FilterOptions struct {
	Actors []ActorOption `json:"actors"`
	Roles  []string      `json:"roles"`
}

// AuditStats aggregates the filtered feed independent of pagination.
type AuditStats struct {
	TotalRecords int64 `json:"totalRecords"`
	Collections  int64 `json:"collections"`
	Sections     int64 `json:"sections"`
	Actors       int64 `json:"actors"`
	Today        int64 `json:"today"`
	LastWeek     int64 `json:"lastWeek"`
}

// AuditPage is the response of the global audit log query.
type AuditPage struct {
	Entries       []AuditEntry  `json:"entries"`
	Pagination    Pagination    `json:"pagination"`
	FilterOptions FilterOptions `json:"filterOptions"`
	Stats         AuditStats    `json:"stats"`
}
