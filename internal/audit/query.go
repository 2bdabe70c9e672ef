package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Every section of a batch record lives in one collection.
const collectionCount = 1

// QueryAuditLog returns one page of the global snapshot feed, newest first,
// with statistics and filter options computed over the whole filtered set.
func (s *Service) QueryAuditLog(ctx context.Context, query domain.AuditQuery) (domain.AuditPage, error) {
	defer s.observe("audit_log", time.Now())

	query, err := s.normalizeQuery(query)
	if err != nil {
		return domain.AuditPage{}, err
	}
	filter := query.Filter
	offset := (query.Page - 1) * query.Limit

	now := s.clock.Now().In(s.location)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)

	var (
		snapshots []domain.FieldSnapshot
		summary   repository.SnapshotSummary
		today     int64
		lastWeek  int64
		options   domain.FilterOptions
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshots, err = s.snapshots.Query(gCtx, filter, query.Limit, offset)
		return storeError(err, "query field snapshots")
	})
	g.Go(func() error {
		var err error
		summary, err = s.snapshots.Summarize(gCtx, filter)
		return storeError(err, "summarize field snapshots")
	})
	g.Go(func() error {
		var err error
		today, err = s.snapshots.Count(gCtx, filter.WithWindow(midnight, now))
		return storeError(err, "count today's snapshots")
	})
	g.Go(func() error {
		var err error
		lastWeek, err = s.snapshots.Count(gCtx, filter.WithWindow(now.Add(-7*24*time.Hour), now))
		return storeError(err, "count last week's snapshots")
	})
	g.Go(func() error {
		var err error
		options, err = s.filterOptions(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.AuditPage{}, err
	}

	entries, err := s.buildEntries(ctx, snapshots)
	if err != nil {
		return domain.AuditPage{}, err
	}

	return domain.AuditPage{
		Entries:       entries,
		Pagination:    domain.NewPagination(summary.Total, query.Page, query.Limit),
		FilterOptions: options,
		Stats: domain.AuditStats{
			TotalRecords: summary.Total,
			Collections:  collectionCount,
			Sections:     summary.Sections,
			Actors:       summary.Actors,
			Today:        today,
			LastWeek:     lastWeek,
		},
	}, nil
}

// GetAuditEntry resolves a single snapshot into an audit entry.
func (s *Service) GetAuditEntry(ctx context.Context, id uuid.UUID) (domain.AuditEntry, error) {
	defer s.observe("audit_entry", time.Now())

	snapshot, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		return domain.AuditEntry{}, storeError(err, "load audit entry")
	}
	entries, err := s.buildEntries(ctx, []domain.FieldSnapshot{snapshot})
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return entries[0], nil
}

func (s *Service) normalizeQuery(query domain.AuditQuery) (domain.AuditQuery, error) {
	switch {
	case query.Page == 0:
		query.Page = 1
	case query.Page < 0:
		return query, fmt.Errorf("%w: page must be at least 1", domain.ErrInvalidQuery)
	}
	switch {
	case query.Limit == 0:
		query.Limit = s.defaultPageSize
	case query.Limit < 0:
		return query, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidQuery)
	case query.Limit > s.maxPageSize:
		query.Limit = s.maxPageSize
	}
	if f := query.Filter; f.From != nil && f.To != nil && f.From.After(*f.To) {
		return query, fmt.Errorf("%w: from must not be after to", domain.ErrInvalidQuery)
	}
	return query, nil
}

// buildEntries classifies each snapshot as insert or update by looking up its
// predecessor, diffs it, and attaches the actor's identity. Output order
// matches input order.
func (s *Service) buildEntries(ctx context.Context, snapshots []domain.FieldSnapshot) ([]domain.AuditEntry, error) {
	predecessors := make([]*domain.FieldSnapshot, len(snapshots))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookupConcurrency)
	for i, snapshot := range snapshots {
		if snapshot.Version <= 1 {
			continue
		}
		g.Go(func() error {
			previous, err := s.snapshots.GetByVersion(gCtx, snapshot.SectionRef, snapshot.Version-1)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil
				}
				return storeError(err, "load previous version")
			}
			predecessors[i] = &previous
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	users := s.resolveUsers(ctx, actorIDs(snapshots))

	entries := make([]domain.AuditEntry, len(snapshots))
	for i, snapshot := range snapshots {
		operation := domain.OperationUpdate
		if predecessors[i] == nil {
			operation = domain.OperationInsert
		}
		entries[i] = domain.AuditEntry{
			ID:            snapshot.ID,
			SectionRef:    snapshot.SectionRef,
			SectionName:   snapshot.SectionName,
			Version:       snapshot.Version,
			Timestamp:     snapshot.Timestamp,
			OperationType: operation,
			Actor:         snapshot.Actor,
			User:          userFor(users, snapshot.Actor.UserID),
			ClientInfo:    snapshot.ClientInfo,
			Fields:        snapshot.Fields,
			Changes:       domain.DiffSnapshots(snapshot, predecessors[i], s.strategy),
		}
	}
	return entries, nil
}

func (s *Service) filterOptions(ctx context.Context) (domain.FilterOptions, error) {
	ids, err := s.snapshots.ListActorIDs(ctx)
	if err != nil {
		return domain.FilterOptions{}, storeError(err, "list audit actors")
	}
	roles, err := s.snapshots.ListRoles(ctx)
	if err != nil {
		return domain.FilterOptions{}, storeError(err, "list audit roles")
	}

	users := s.resolveUsers(ctx, ids)
	actors := make([]domain.ActorOption, 0, len(ids))
	for _, id := range ids {
		actors = append(actors, domain.ActorOption{UserID: id, User: userFor(users, id)})
	}
	if roles == nil {
		roles = []string{}
	}
	return domain.FilterOptions{Actors: actors, Roles: roles}, nil
}
