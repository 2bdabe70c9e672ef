package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/metrics"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"
	"github.com/hangxigood/ERP-MES-sub000/internal/userloader"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultMaxWriteRetries   = 3
	defaultPageSize          = 20
	defaultMaxPageSize       = 200
	defaultLookupConcurrency = 8
	defaultExportLimit       = 10000
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Service captures field snapshots and serves the history and audit views
// derived from them.
type Service struct {
	snapshots repository.SnapshotRepository
	users     repository.UserDirectory

	logger  *slog.Logger
	metrics *metrics.Audit
	clock   Clock
	newID   func() (uuid.UUID, error)

	strategy          domain.FieldMatchStrategy
	maxWriteRetries   int
	defaultPageSize   int
	maxPageSize       int
	lookupConcurrency int
	exportLimit       int
	location          *time.Location
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Audit) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMatchStrategy selects how fields of consecutive versions are paired.
func WithMatchStrategy(strategy domain.FieldMatchStrategy) Option {
	return func(s *Service) {
		s.strategy = strategy
	}
}

// WithMaxWriteRetries bounds the attempts RecordVersion makes on version conflicts.
func WithMaxWriteRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxWriteRetries = n
		}
	}
}

func WithPageSizes(defaultSize, maxSize int) Option {
	return func(s *Service) {
		if defaultSize > 0 {
			s.defaultPageSize = defaultSize
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
	}
}

func WithLookupConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lookupConcurrency = n
		}
	}
}

func WithExportLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.exportLimit = n
		}
	}
}

// WithLocation sets the zone used for the "today" statistic and date-only filters.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func NewService(
	snapshots repository.SnapshotRepository,
	users repository.UserDirectory,
	opts ...Option,
) *Service {
	service := &Service{
		snapshots:         snapshots,
		users:             users,
		logger:            slog.Default(),
		clock:             RealClock{},
		newID:             uuid.NewV7,
		strategy:          domain.MatchByName,
		maxWriteRetries:   defaultMaxWriteRetries,
		defaultPageSize:   defaultPageSize,
		maxPageSize:       defaultMaxPageSize,
		lookupConcurrency: defaultLookupConcurrency,
		exportLimit:       defaultExportLimit,
		location:          time.UTC,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.metrics == nil {
		service.metrics = metrics.NewAudit(prometheus.NewRegistry())
	}
	if service.defaultPageSize > service.maxPageSize {
		service.defaultPageSize = service.maxPageSize
	}
	return service
}

// Location returns the zone used to interpret calendar dates.
func (s *Service) Location() *time.Location {
	return s.location
}

// observe records the duration of a read operation.
func (s *Service) observe(operation string, start time.Time) {
	s.metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// storeError passes nil and ErrNotFound through and marks everything else as
// a dependency failure.
func storeError(err error, action string) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to %s: %w: %w", action, domain.ErrDependencyUnavailable, err)
}

// resolveUsers looks up display identities for ids. Lookups are best effort:
// failures are logged and yield an empty result.
func (s *Service) resolveUsers(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]domain.UserIdentity {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[uuid.UUID]domain.UserIdentity{}
	}

	var (
		resolved map[uuid.UUID]domain.UserIdentity
		err      error
	)
	if loader := userloader.FromContext(ctx); loader != nil {
		resolved, err = loader.LoadMany(ctx, unique)
	} else if s.users != nil {
		var users []domain.UserIdentity
		users, err = s.users.GetByIDs(ctx, unique)
		resolved = make(map[uuid.UUID]domain.UserIdentity, len(users))
		for _, u := range users {
			resolved[u.ID] = u
		}
	}
	if err != nil {
		s.metrics.IdentityLookupFailures.Inc()
		s.logger.WarnContext(ctx, "user lookup failed; showing actors as unknown", "count", len(unique), "error", err)
		return map[uuid.UUID]domain.UserIdentity{}
	}
	if resolved == nil {
		resolved = map[uuid.UUID]domain.UserIdentity{}
	}
	return resolved
}

func userFor(users map[uuid.UUID]domain.UserIdentity, id uuid.UUID) *domain.UserIdentity {
	u, ok := users[id]
	if !ok {
		return nil
	}
	return &u
}

func actorIDs(snapshots []domain.FieldSnapshot) []uuid.UUID {
	ids := make([]uuid.UUID, len(snapshots))
	for i, snapshot := range snapshots {
		ids[i] = snapshot.Actor.UserID
	}
	return ids
}
