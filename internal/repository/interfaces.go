package repository

import (
	"context"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/google/uuid"
)

// SnapshotRepository defines the append-only field snapshot store.
//
// Insert must reject a second snapshot for an existing (SectionRef, Version)
// pair with an error wrapping domain.ErrConcurrentVersionConflict. Lookups of
// missing rows return errors wrapping domain.ErrNotFound.
type SnapshotRepository interface {
	Insert(ctx context.Context, snapshot domain.FieldSnapshot) (domain.FieldSnapshot, error)
	MaxVersion(ctx context.Context, sectionRef uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.FieldSnapshot, error)
	GetByVersion(ctx context.Context, sectionRef uuid.UUID, version int64) (domain.FieldSnapshot, error)
	// ListBySection returns every snapshot of a section ordered by version descending.
	ListBySection(ctx context.Context, sectionRef uuid.UUID) ([]domain.FieldSnapshot, error)
	// Query returns matching snapshots ordered by timestamp then id, both descending.
	Query(ctx context.Context, filter domain.AuditFilter, limit int, offset int) ([]domain.FieldSnapshot, error)
	Summarize(ctx context.Context, filter domain.AuditFilter) (SnapshotSummary, error)
	Count(ctx context.Context, filter domain.AuditFilter) (int64, error)
	ListActorIDs(ctx context.Context) ([]uuid.UUID, error)
	ListRoles(ctx context.Context) ([]string, error)
	DeleteBySection(ctx context.Context, sectionRef uuid.UUID) (int64, error)
}

// SnapshotSummary aggregates a filtered set of snapshots.
type SnapshotSummary struct {
	Total    int64
	Sections int64
	Actors   int64
}

// UserDirectory resolves actor display identities. It is read-only reference data.
type UserDirectory interface {
	// GetByIDs returns the identities that exist; unknown ids are omitted.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.UserIdentity, error)
}
