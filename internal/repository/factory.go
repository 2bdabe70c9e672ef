package repository

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the repositories the audit service depends on.
type Store struct {
	Snapshots SnapshotRepository
	Users     UserDirectory
}

// NewStore selects a backend by storage type. The pool is required for "postgres".
func NewStore(storageType string, pool *pgxpool.Pool) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(storageType)) {
	case "", "postgres":
		if pool == nil {
			return Store{}, fmt.Errorf("postgres storage requires a connection pool")
		}
		return Store{
			Snapshots: NewSnapshotRepository(pool),
			Users:     NewUserDirectory(pool),
		}, nil
	case "memory":
		return Store{
			Snapshots: NewMemorySnapshotRepository(),
			Users:     NewMemoryUserDirectory(),
		}, nil
	default:
		return Store{}, fmt.Errorf("unknown storage type: %s", storageType)
	}
}
