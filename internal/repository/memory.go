package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/google/uuid"
)

type sectionVersion struct {
	sectionRef uuid.UUID
	version    int64
}

// MemorySnapshotRepository is an in-memory SnapshotRepository. It enforces the
// same (section, version) uniqueness as the Postgres schema and never hands out
// references to stored state. Safe for concurrent use.
type MemorySnapshotRepository struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]domain.FieldSnapshot
	byVersion map[sectionVersion]uuid.UUID
}

var _ SnapshotRepository = (*MemorySnapshotRepository)(nil)

// NewMemorySnapshotRepository creates an empty in-memory snapshot store.
func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		byID:      make(map[uuid.UUID]domain.FieldSnapshot),
		byVersion: make(map[sectionVersion]uuid.UUID),
	}
}

func (m *MemorySnapshotRepository) Insert(ctx context.Context, snapshot domain.FieldSnapshot) (domain.FieldSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.FieldSnapshot{}, err
	}
	if snapshot.Version <= 0 {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to insert field snapshot: version must be positive, got %d", snapshot.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sectionVersion{sectionRef: snapshot.SectionRef, version: snapshot.Version}
	if _, exists := m.byVersion[key]; exists {
		return domain.FieldSnapshot{}, fmt.Errorf("version %d of section %s already exists: %w", snapshot.Version, snapshot.SectionRef, domain.ErrConcurrentVersionConflict)
	}
	if _, exists := m.byID[snapshot.ID]; exists {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to insert field snapshot: duplicate id %s", snapshot.ID)
	}

	m.byID[snapshot.ID] = snapshot.Clone()
	m.byVersion[key] = snapshot.ID
	return snapshot.Clone(), nil
}

func (m *MemorySnapshotRepository) MaxVersion(ctx context.Context, sectionRef uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var highest int64
	for key := range m.byVersion {
		if key.sectionRef == sectionRef && key.version > highest {
			highest = key.version
		}
	}
	return highest, nil
}

func (m *MemorySnapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FieldSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.byID[id]
	if !ok {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to get field snapshot %s: %w", id, domain.ErrNotFound)
	}
	return snapshot.Clone(), nil
}

func (m *MemorySnapshotRepository) GetByVersion(ctx context.Context, sectionRef uuid.UUID, version int64) (domain.FieldSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byVersion[sectionVersion{sectionRef: sectionRef, version: version}]
	if !ok {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to get version %d of section %s: %w", version, sectionRef, domain.ErrNotFound)
	}
	return m.byID[id].Clone(), nil
}

func (m *MemorySnapshotRepository) ListBySection(ctx context.Context, sectionRef uuid.UUID) ([]domain.FieldSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := []domain.FieldSnapshot{}
	for _, snapshot := range m.byID {
		if snapshot.SectionRef == sectionRef {
			snapshots = append(snapshots, snapshot.Clone())
		}
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Version > snapshots[j].Version
	})
	return snapshots, nil
}

func (m *MemorySnapshotRepository) Query(ctx context.Context, filter domain.AuditFilter, limit int, offset int) ([]domain.FieldSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := m.matching(filter)
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return bytes.Compare(matched[i].ID[:], matched[j].ID[:]) > 0
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.FieldSnapshot{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]domain.FieldSnapshot, 0, end-offset)
	for _, snapshot := range matched[offset:end] {
		page = append(page, snapshot.Clone())
	}
	return page, nil
}

func (m *MemorySnapshotRepository) Summarize(ctx context.Context, filter domain.AuditFilter) (SnapshotSummary, error) {
	m.mu.RLock()
	matched := m.matching(filter)
	m.mu.RUnlock()

	sections := map[uuid.UUID]struct{}{}
	actors := map[uuid.UUID]struct{}{}
	for _, snapshot := range matched {
		sections[snapshot.SectionRef] = struct{}{}
		actors[snapshot.Actor.UserID] = struct{}{}
	}
	return SnapshotSummary{
		Total:    int64(len(matched)),
		Sections: int64(len(sections)),
		Actors:   int64(len(actors)),
	}, nil
}

func (m *MemorySnapshotRepository) Count(ctx context.Context, filter domain.AuditFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(filter))), nil
}

func (m *MemorySnapshotRepository) ListActorIDs(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	seen := map[uuid.UUID]struct{}{}
	for _, snapshot := range m.byID {
		seen[snapshot.Actor.UserID] = struct{}{}
	}
	m.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids, nil
}

func (m *MemorySnapshotRepository) ListRoles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	seen := map[string]struct{}{}
	for _, snapshot := range m.byID {
		if snapshot.Actor.Role != "" {
			seen[snapshot.Actor.Role] = struct{}{}
		}
	}
	m.mu.RUnlock()

	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

func (m *MemorySnapshotRepository) DeleteBySection(ctx context.Context, sectionRef uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, id := range m.byVersion {
		if key.sectionRef != sectionRef {
			continue
		}
		delete(m.byVersion, key)
		delete(m.byID, id)
		removed++
	}
	return removed, nil
}

// matching must be called with m.mu held.
func (m *MemorySnapshotRepository) matching(filter domain.AuditFilter) []domain.FieldSnapshot {
	role := strings.TrimSpace(filter.Role)
	out := []domain.FieldSnapshot{}
	for _, snapshot := range m.byID {
		if filter.From != nil && snapshot.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && snapshot.Timestamp.After(*filter.To) {
			continue
		}
		if filter.UserID != nil && snapshot.Actor.UserID != *filter.UserID {
			continue
		}
		if role != "" && snapshot.Actor.Role != role {
			continue
		}
		out = append(out, snapshot)
	}
	return out
}

// MemoryUserDirectory is an in-memory UserDirectory.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]domain.UserIdentity
}

var _ UserDirectory = (*MemoryUserDirectory)(nil)

// NewMemoryUserDirectory seeds a directory with the given identities.
func NewMemoryUserDirectory(users ...domain.UserIdentity) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[uuid.UUID]domain.UserIdentity, len(users))}
	for _, user := range users {
		d.users[user.ID] = user
	}
	return d
}

// Put adds or replaces an identity.
func (d *MemoryUserDirectory) Put(user domain.UserIdentity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryUserDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.UserIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]domain.UserIdentity, 0, len(ids))
	for _, id := range ids {
		if user, ok := d.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}
