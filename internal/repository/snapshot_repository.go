package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hangxigood/ERP-MES-sub000/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

const snapshotColumns = `id, section_ref, section_name, version, captured_at, fields, actor_user_id, actor_role, client_info`

type snapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository wires a snapshot store backed by pgxpool.
func NewSnapshotRepository(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepository{pool: pool}
}

func (r *snapshotRepository) Insert(ctx context.Context, snapshot domain.FieldSnapshot) (domain.FieldSnapshot, error) {
	if r.pool == nil {
		return domain.FieldSnapshot{}, fmt.Errorf("snapshot repository not initialized")
	}

	fieldsJSON, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	var clientInfoJSON []byte
	if snapshot.ClientInfo != nil {
		clientInfoJSON, err = json.Marshal(snapshot.ClientInfo)
		if err != nil {
			return domain.FieldSnapshot{}, fmt.Errorf("failed to marshal client info: %w", err)
		}
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO field_snapshots (`+snapshotColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snapshot.ID,
		snapshot.SectionRef,
		snapshot.SectionName,
		snapshot.Version,
		snapshot.Timestamp,
		fieldsJSON,
		snapshot.Actor.UserID,
		snapshot.Actor.Role,
		clientInfoJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.FieldSnapshot{}, fmt.Errorf("version %d of section %s already exists: %w", snapshot.Version, snapshot.SectionRef, domain.ErrConcurrentVersionConflict)
		}
		return domain.FieldSnapshot{}, fmt.Errorf("failed to insert field snapshot: %w", err)
	}

	return snapshot, nil
}

func (r *snapshotRepository) MaxVersion(ctx context.Context, sectionRef uuid.UUID) (int64, error) {
	var version int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COALESCE(MAX(version), 0) FROM field_snapshots WHERE section_ref = $1`,
		sectionRef,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get max snapshot version: %w", err)
	}
	return version, nil
}

func (r *snapshotRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.FieldSnapshot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM field_snapshots WHERE id = $1`, id)
	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FieldSnapshot{}, fmt.Errorf("failed to get field snapshot %s: %w", id, domain.ErrNotFound)
		}
		return domain.FieldSnapshot{}, fmt.Errorf("failed to get field snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *snapshotRepository) GetByVersion(ctx context.Context, sectionRef uuid.UUID, version int64) (domain.FieldSnapshot, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+snapshotColumns+` FROM field_snapshots WHERE section_ref = $1 AND version = $2`,
		sectionRef,
		version,
	)
	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FieldSnapshot{}, fmt.Errorf("failed to get version %d of section %s: %w", version, sectionRef, domain.ErrNotFound)
		}
		return domain.FieldSnapshot{}, fmt.Errorf("failed to get field snapshot version: %w", err)
	}
	return snapshot, nil
}

func (r *snapshotRepository) ListBySection(ctx context.Context, sectionRef uuid.UUID) ([]domain.FieldSnapshot, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+snapshotColumns+` FROM field_snapshots WHERE section_ref = $1 ORDER BY version DESC`,
		sectionRef,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list section snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func (r *snapshotRepository) Query(ctx context.Context, filter domain.AuditFilter, limit int, offset int) ([]domain.FieldSnapshot, error) {
	where, args := buildSnapshotFilter(filter)
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		`SELECT %s FROM field_snapshots %s ORDER BY captured_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		snapshotColumns, where, len(args)-1, len(args),
	)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query field snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func (r *snapshotRepository) Summarize(ctx context.Context, filter domain.AuditFilter) (SnapshotSummary, error) {
	where, args := buildSnapshotFilter(filter)

	var summary SnapshotSummary
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*), COUNT(DISTINCT section_ref), COUNT(DISTINCT actor_user_id) FROM field_snapshots `+where,
		args...,
	).Scan(&summary.Total, &summary.Sections, &summary.Actors)
	if err != nil {
		return SnapshotSummary{}, fmt.Errorf("failed to summarize field snapshots: %w", err)
	}
	return summary, nil
}

func (r *snapshotRepository) Count(ctx context.Context, filter domain.AuditFilter) (int64, error) {
	where, args := buildSnapshotFilter(filter)

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM field_snapshots `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count field snapshots: %w", err)
	}
	return count, nil
}

func (r *snapshotRepository) ListActorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT actor_user_id FROM field_snapshots ORDER BY actor_user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot actors: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot actors: %w", err)
	}
	return ids, nil
}

func (r *snapshotRepository) ListRoles(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT actor_role FROM field_snapshots WHERE actor_role <> '' ORDER BY actor_role`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot roles: %w", err)
	}
	return roles, nil
}

func (r *snapshotRepository) DeleteBySection(ctx context.Context, sectionRef uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM field_snapshots WHERE section_ref = $1`, sectionRef)
	if err != nil {
		return 0, fmt.Errorf("failed to delete section snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildSnapshotFilter renders the WHERE clause shared by the audit queries.
func buildSnapshotFilter(filter domain.AuditFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("captured_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("captured_at <= $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("actor_user_id = $%d", len(args)))
	}
	if role := strings.TrimSpace(filter.Role); role != "" {
		args = append(args, role)
		clauses = append(clauses, fmt.Sprintf("actor_role = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func collectSnapshots(rows pgx.Rows) ([]domain.FieldSnapshot, error) {
	defer rows.Close()

	snapshots := []domain.FieldSnapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate field snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (domain.FieldSnapshot, error) {
	var (
		snapshot       domain.FieldSnapshot
		fieldsJSON     []byte
		clientInfoJSON []byte
	)
	if err := row.Scan(
		&snapshot.ID,
		&snapshot.SectionRef,
		&snapshot.SectionName,
		&snapshot.Version,
		&snapshot.Timestamp,
		&fieldsJSON,
		&snapshot.Actor.UserID,
		&snapshot.Actor.Role,
		&clientInfoJSON,
	); err != nil {
		return domain.FieldSnapshot{}, err
	}

	if err := json.Unmarshal(fieldsJSON, &snapshot.Fields); err != nil {
		return domain.FieldSnapshot{}, fmt.Errorf("failed to decode fields for snapshot %s: %w", snapshot.ID, err)
	}
	if len(clientInfoJSON) > 0 {
		if err := json.Unmarshal(clientInfoJSON, &snapshot.ClientInfo); err != nil {
			return domain.FieldSnapshot{}, fmt.Errorf("failed to decode client info for snapshot %s: %w", snapshot.ID, err)
		}
	}
	return snapshot, nil
}
