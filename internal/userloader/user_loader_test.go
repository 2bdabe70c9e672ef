package userloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	mu    sync.Mutex
	calls int
	users map[uuid.UUID]domain.UserIdentity
	err   error
}

var _ repository.UserDirectory = (*countingDirectory)(nil)

func (d *countingDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.UserIdentity, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []domain.UserIdentity
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestUserLoaderBatchesAndSkipsUnknown(t *testing.T) {
	amy := domain.UserIdentity{ID: uuid.New(), Name: "Amy", Role: "operator"}
	bob := domain.UserIdentity{ID: uuid.New(), Name: "Bob", Role: "qa"}
	dir := &countingDirectory{users: map[uuid.UUID]domain.UserIdentity{amy.ID: amy, bob.ID: bob}}

	loader := NewUserLoader(dir)
	unknown := uuid.New()
	resolved, err := loader.LoadMany(context.Background(), []uuid.UUID{amy.ID, bob.ID, unknown})
	require.NoError(t, err)

	assert.Equal(t, amy, resolved[amy.ID])
	assert.Equal(t, bob, resolved[bob.ID])
	_, found := resolved[unknown]
	assert.False(t, found)
	assert.Equal(t, 1, dir.calls)
}

func TestUserLoaderPropagatesDirectoryError(t *testing.T) {
	dir := &countingDirectory{err: errors.New("directory offline")}
	loader := NewUserLoader(dir)

	_, err := loader.LoadMany(context.Background(), []uuid.UUID{uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory offline")
}

func TestLoaderContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	loader := NewUserLoader(&countingDirectory{})
	ctx := WithLoader(context.Background(), loader)
	assert.Same(t, loader, FromContext(ctx))
}
