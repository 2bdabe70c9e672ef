package userloader

import (
	"context"
	"fmt"
	"time"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

type ctxKey string

const userLoaderKey ctxKey = "userLoader"

// UserLoader batches actor identity lookups issued while serving one request.
type UserLoader struct {
	Loader *dataloader.Loader
}

func NewUserLoader(dir repository.UserDirectory) *UserLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results := make([]*dataloader.Result, len(keys))
				for j := range results {
					results[j] = &dataloader.Result{Error: fmt.Errorf("invalid user id %q: %w", k.String(), err)}
				}
				return results
			}
			ids[i] = id
		}

		users, err := dir.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[uuid.UUID]domain.UserIdentity, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}

		// Results must line up with keys; unknown users resolve to nil.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if u, ok := byID[id]; ok {
				user := u
				results[i] = &dataloader.Result{Data: &user}
			} else {
				results[i] = &dataloader.Result{Data: (*domain.UserIdentity)(nil)}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond))
	return &UserLoader{Loader: loader}
}

// LoadMany resolves ids through the loader. The result maps every id that
// exists in the directory; unknown ids are absent.
func (l *UserLoader) LoadMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.UserIdentity, error) {
	keys := make(dataloader.Keys, len(ids))
	for i, id := range ids {
		keys[i] = dataloader.StringKey(id.String())
	}

	values, errs := l.Loader.LoadMany(ctx, keys)()
	resolved := make(map[uuid.UUID]domain.UserIdentity, len(ids))
	for i, value := range values {
		if i < len(errs) && errs[i] != nil {
			return resolved, fmt.Errorf("failed to load user %s: %w", ids[i], errs[i])
		}
		if user, ok := value.(*domain.UserIdentity); ok && user != nil {
			resolved[user.ID] = *user
		}
	}
	return resolved, nil
}

// WithLoader attaches a loader to the context.
func WithLoader(ctx context.Context, loader *UserLoader) context.Context {
	return context.WithValue(ctx, userLoaderKey, loader)
}

// FromContext retrieves the request's loader, if any.
func FromContext(ctx context.Context) *UserLoader {
	if l, ok := ctx.Value(userLoaderKey).(*UserLoader); ok {
		return l
	}
	return nil
}
