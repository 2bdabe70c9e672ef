package audit

import (
	"context"
	"testing"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAuditLogClassifiesInsertAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	actor := domain.Actor{UserID: uuid.New(), Role: "operator"}
	section := uuid.New()

	env.record(t, section, actor, textField("Lot", "100"))
	env.record(t, section, actor, textField("Lot", "200"))

	page, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	assert.Equal(t, int64(2), page.Entries[0].Version)
	assert.Equal(t, domain.OperationUpdate, page.Entries[0].OperationType)
	require.Len(t, page.Entries[0].Changes, 1)
	assert.Equal(t, "200", page.Entries[0].Changes[0].NewValue)

	assert.Equal(t, int64(1), page.Entries[1].Version)
	assert.Equal(t, domain.OperationInsert, page.Entries[1].OperationType)
	assert.Empty(t, page.Entries[1].Changes)
}

func TestQueryAuditLogPagination(t *testing.T) {
	env := newTestEnv(t)
	actor := domain.Actor{UserID: uuid.New(), Role: "operator"}

	const total = 23
	for i := 0; i < total; i++ {
		env.record(t, uuid.New(), actor, textField("Lot", "x"))
	}

	seen := map[uuid.UUID]bool{}
	var previous time.Time
	for pageNum := 1; ; pageNum++ {
		page, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Page: pageNum, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(total), page.Pagination.Total)
		assert.Equal(t, int64(5), page.Pagination.Pages)
		assert.Equal(t, pageNum, page.Pagination.CurrentPage)

		for _, entry := range page.Entries {
			assert.False(t, seen[entry.ID], "entry %s returned twice", entry.ID)
			seen[entry.ID] = true
			if !previous.IsZero() {
				assert.True(t, entry.Timestamp.Before(previous), "timestamps descend")
			}
			previous = entry.Timestamp
		}
		if int64(pageNum) >= page.Pagination.Pages {
			assert.Len(t, page.Entries, 3)
			break
		}
		assert.Len(t, page.Entries, 5)
	}
	assert.Len(t, seen, total)

	beyond, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Page: 9, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond.Entries)
	assert.Equal(t, int64(total), beyond.Pagination.Total)
}

func TestQueryAuditLogDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t, WithPageSizes(10, 50))

	page, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, 10, page.Pagination.Limit)
	assert.Empty(t, page.Entries)
	assert.NotNil(t, page.Entries)

	page, err = env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 50, page.Pagination.Limit)

	_, err = env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Page: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	_, err = env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Limit: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	from := testStart
	to := testStart.Add(-time.Hour)
	_, err = env.service.QueryAuditLog(context.Background(), domain.AuditQuery{Filter: domain.AuditFilter{From: &from, To: &to}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestQueryAuditLogStatsAndFilters(t *testing.T) {
	env := newTestEnv(t)
	amy := domain.UserIdentity{ID: uuid.New(), Name: "Amy", Email: "amy@example.com", Role: "operator"}
	env.users.Put(amy)
	operator := domain.Actor{UserID: amy.ID, Role: "operator"}
	qa := domain.Actor{UserID: uuid.New(), Role: "qa"}

	sectionA := uuid.New()
	sectionB := uuid.New()

	// Ten days ago.
	env.clock.Set(testStart.Add(-10 * 24 * time.Hour))
	env.record(t, sectionA, operator, textField("Lot", "1"))
	// Three days ago.
	env.clock.Set(testStart.Add(-3 * 24 * time.Hour))
	env.record(t, sectionA, qa, textField("Lot", "2"))
	// Earlier today.
	env.clock.Set(testStart.Add(-2 * time.Hour))
	env.record(t, sectionB, operator, textField("Lot", "3"))
	env.record(t, sectionB, operator, textField("Lot", "4"))
	env.clock.Set(testStart)

	page, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStats{
		TotalRecords: 4,
		Collections:  1,
		Sections:     2,
		Actors:       2,
		Today:        2,
		LastWeek:     3,
	}, page.Stats)

	assert.ElementsMatch(t, []string{"operator", "qa"}, page.FilterOptions.Roles)
	require.Len(t, page.FilterOptions.Actors, 2)
	for _, option := range page.FilterOptions.Actors {
		if option.UserID == amy.ID {
			require.NotNil(t, option.User)
			assert.Equal(t, "Amy", option.User.Name)
		} else {
			assert.Nil(t, option.User, "unknown users are listed by id only")
		}
	}

	filtered, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{
		Filter: domain.AuditFilter{Role: "qa"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Stats.TotalRecords)
	assert.Equal(t, int64(1), filtered.Stats.LastWeek)
	assert.Equal(t, int64(0), filtered.Stats.Today)
	require.Len(t, filtered.Entries, 1)
	assert.Equal(t, domain.OperationUpdate, filtered.Entries[0].OperationType, "predecessor lookup ignores the filter")
	assert.Len(t, filtered.FilterOptions.Actors, 2, "filter options span the whole store")

	from := testStart.Add(-4 * 24 * time.Hour)
	to := testStart.Add(-24 * time.Hour)
	windowed, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{
		Filter: domain.AuditFilter{From: &from, To: &to},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), windowed.Stats.TotalRecords)
	assert.Equal(t, int64(0), windowed.Stats.Today, "rolling windows intersect the caller's range")
	assert.Equal(t, int64(1), windowed.Stats.LastWeek)
}

func TestQueryAuditLogTodayUsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("UTC-8", -8*60*60)
	env := newTestEnv(t, WithLocation(zone))
	actor := domain.Actor{UserID: uuid.New()}

	// Now is 06:30 local. 07:00 UTC is 23:00 local on the previous day.
	env.clock.Set(time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC))
	env.record(t, uuid.New(), actor, textField("Lot", "1"))
	env.clock.Set(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC))
	env.record(t, uuid.New(), actor, textField("Lot", "2"))
	env.clock.Set(testStart)

	page, err := env.service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Stats.Today)
}

func TestQueryAuditLogUnknownUsersDegradeToNil(t *testing.T) {
	env := newTestEnv(t)
	env.record(t, uuid.New(), domain.Actor{UserID: uuid.New()}, textField("Lot", "1"))

	service := NewService(env.snapshots, failingDirectory{}, WithClock(env.clock), WithMetrics(env.metrics))
	page, err := service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Nil(t, page.Entries[0].User)
}

func TestQueryAuditLogPredecessorLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	section := uuid.New()
	actor := domain.Actor{UserID: uuid.New()}
	env.record(t, section, actor, textField("Lot", "1"))
	env.record(t, section, actor, textField("Lot", "2"))

	repo := &faultySnapshotRepository{MemorySnapshotRepository: env.snapshots, getVersionErr: errStoreDown}
	service := NewService(repo, env.users, WithClock(env.clock), WithMetrics(env.metrics))

	_, err := service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestGetAuditEntry(t *testing.T) {
	env := newTestEnv(t)
	section := uuid.New()
	actor := domain.Actor{UserID: uuid.New(), Role: "qa"}
	env.record(t, section, actor, textField("Part", "Bolt", "Nut"), textField("Qty", "1", "2"))
	second := env.record(t, section, actor, textField("Part", "Bolt", "Nut"), textField("Qty", "1", "4"))

	entry, err := env.service.GetAuditEntry(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationUpdate, entry.OperationType)
	require.Len(t, entry.Changes, 1)
	assert.Equal(t, domain.FieldChange{
		SectionName: "Header",
		RowLabel:    "Nut(2)",
		RowIndex:    1,
		FieldName:   "Qty",
		FieldType:   domain.FieldTypeText,
		OldValue:    "2",
		NewValue:    "4",
	}, entry.Changes[0])

	_, err = env.service.GetAuditEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueryAuditLogToleratesPurgedPredecessor(t *testing.T) {
	snapshots := repository.NewMemorySnapshotRepository()
	section := uuid.New()
	actor := domain.Actor{UserID: uuid.New()}
	_, err := snapshots.Insert(context.Background(), domain.FieldSnapshot{
		ID:         uuid.New(),
		SectionRef: section,
		Version:    4,
		Timestamp:  testStart,
		Fields:     []domain.Field{textField("Lot", "9")},
		Actor:      actor,
	})
	require.NoError(t, err)

	service := NewService(snapshots, nil, WithClock(&stubClock{now: testStart}))
	page, err := service.QueryAuditLog(context.Background(), domain.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, domain.OperationInsert, page.Entries[0].OperationType)
}
