package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hangxigood/ERP-MES-sub000/internal/db"
	"github.com/hangxigood/ERP-MES-sub000/internal/domain"
	"github.com/hangxigood/ERP-MES-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var (
	usersCmd = &cobra.Command{
		Use:   "users",
		Short: "Manage the actor directory",
	}

	usersImportCmd = &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Upsert users from a CSV with columns id,name,email,role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := readUsersFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			conn, err := db.NewConnection(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer conn.Close()

			err = conn.WithTx(ctx, func(tx pgx.Tx) error {
				return repository.UpsertUsers(ctx, tx, users)
			})
			if err != nil {
				return err
			}
			logger.Info("users imported", "count", len(users), "file", args[0])
			return nil
		},
	}
)

func readUsersFile(path string) ([]domain.UserIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open users file: %w", err)
	}
	defer f.Close()
	return readUsersCSV(f)
}

// readUsersCSV parses id,name,email,role rows. A header row whose first cell
// is "id" is skipped; email and role may be omitted.
func readUsersCSV(r io.Reader) ([]domain.UserIdentity, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	users := []domain.UserIdentity{}
	seen := map[uuid.UUID]int{}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read users csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "id") {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: want at least id and name", line)
		}

		id, err := uuid.Parse(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id: %w", line, err)
		}
		name := strings.TrimSpace(record[1])
		if name == "" {
			return nil, fmt.Errorf("line %d: name is required", line)
		}

		user := domain.UserIdentity{ID: id, Name: name}
		if len(record) > 2 {
			user.Email = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			user.Role = strings.TrimSpace(record[3])
		}

		// later rows win, matching ON CONFLICT DO UPDATE
		if idx, ok := seen[id]; ok {
			users[idx] = user
			continue
		}
		seen[id] = len(users)
		users = append(users, user)
	}
	return users, nil
}
