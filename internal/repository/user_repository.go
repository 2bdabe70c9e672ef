package repository

import (
	"context"
	"fmt"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type userDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory reads actor identities from the users table.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &userDirectory{pool: pool}
}

func (r *userDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.UserIdentity, error) {
	if len(ids) == 0 {
		return []domain.UserIdentity{}, nil
	}
	if r.pool == nil {
		return nil, fmt.Errorf("user directory not initialized")
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name, email, role FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by IDs: %w", err)
	}
	defer rows.Close()

	users := []domain.UserIdentity{}
	for rows.Next() {
		var (
			user  domain.UserIdentity
			email pgtype.Text
			role  pgtype.Text
		)
		if err := rows.Scan(&user.ID, &user.Name, &email, &role); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Email = email.String
		user.Role = role.String
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// UpsertUsers writes identities inside tx, replacing rows that share an id.
func UpsertUsers(ctx context.Context, tx pgx.Tx, users []domain.UserIdentity) error {
	if len(users) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, user := range users {
		batch.Queue(
			`INSERT INTO users (id, name, email, role)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`,
			user.ID, user.Name, user.Email, user.Role,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for _, user := range users {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
		}
	}
	return nil
}
