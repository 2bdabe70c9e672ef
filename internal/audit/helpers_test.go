package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/metrics"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("connection refused")

// stubClock returns a settable instant.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// faultySnapshotRepository wraps a memory store and injects failures.
type faultySnapshotRepository struct {
	*repository.MemorySnapshotRepository

	mu            sync.Mutex
	insertErr     error
	insertCalls   int
	getVersionErr error
	listErr       error
}

var _ repository.SnapshotRepository = (*faultySnapshotRepository)(nil)

func (f *faultySnapshotRepository) Insert(ctx context.Context, snapshot domain.FieldSnapshot) (domain.FieldSnapshot, error) {
	f.mu.Lock()
	f.insertCalls++
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return domain.FieldSnapshot{}, err
	}
	return f.MemorySnapshotRepository.Insert(ctx, snapshot)
}

func (f *faultySnapshotRepository) GetByVersion(ctx context.Context, sectionRef uuid.UUID, version int64) (domain.FieldSnapshot, error) {
	if f.getVersionErr != nil {
		return domain.FieldSnapshot{}, f.getVersionErr
	}
	return f.MemorySnapshotRepository.GetByVersion(ctx, sectionRef, version)
}

func (f *faultySnapshotRepository) ListBySection(ctx context.Context, sectionRef uuid.UUID) ([]domain.FieldSnapshot, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemorySnapshotRepository.ListBySection(ctx, sectionRef)
}

// failingDirectory always fails lookups.
type failingDirectory struct{}

var _ repository.UserDirectory = failingDirectory{}

func (failingDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.UserIdentity, error) {
	return nil, errStoreDown
}

type testEnv struct {
	service   *Service
	snapshots *repository.MemorySnapshotRepository
	users     *repository.MemoryUserDirectory
	clock     *stubClock
	metrics   *metrics.Audit
}

var testStart = time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

func newTestEnv(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	env := testEnv{
		snapshots: repository.NewMemorySnapshotRepository(),
		users:     repository.NewMemoryUserDirectory(),
		clock:     &stubClock{now: testStart},
		metrics:   metrics.NewAudit(prometheus.NewRegistry()),
	}
	base := []Option{WithClock(env.clock), WithMetrics(env.metrics)}
	env.service = NewService(env.snapshots, env.users, append(base, opts...)...)
	return env
}

func textField(name string, rows ...string) domain.Field {
	return domain.Field{Name: name, Type: domain.FieldTypeText, Value: domain.TextRows(rows...)}
}

// record writes a version and advances the clock by a minute.
func (env testEnv) record(t *testing.T, sectionRef uuid.UUID, actor domain.Actor, fields ...domain.Field) domain.FieldSnapshot {
	t.Helper()
	snapshot, err := env.service.RecordVersion(context.Background(), RecordVersionRequest{
		SectionRef:  sectionRef,
		SectionName: "Header",
		Fields:      fields,
		Actor:       actor,
	})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	return snapshot
}
