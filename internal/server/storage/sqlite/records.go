package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// GetRecord retrieves a single record by key
// Tombstone возвращается с found=true: его версия нужна для CAS
func (s *Storage) GetRecord(ctx context.Context, userID, key string) (*models.Record, bool, error) {
	query := `
		SELECT key, value, version, updated_at
		FROM records
		WHERE user_id = ? AND key = ?
	`

	record := &models.Record{UserID: userID}

	err := s.db.QueryRowContext(ctx, query, userID, key).Scan(
		&record.Key,
		&record.Value,
		&record.Version,
		&record.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get record: %w", err)
	}

	return record, true, nil
}

// ScanRecords retrieves records with the given key prefix, ordered by key
func (s *Storage) ScanRecords(
	ctx context.Context,
	userID, prefix string,
	limit int,
) ([]models.Record, error) {
	query := `
		SELECT key, value, version, updated_at
		FROM records
		WHERE user_id = ? AND key >= ? AND key < ?
		ORDER BY key
	`
	args := []any{userID, prefix, prefixRangeEnd(prefix)}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []models.Record

	for rows.Next() {
		record := models.Record{UserID: userID}
		if err := rows.Scan(
			&record.Key,
			&record.Value,
			&record.Version,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// Mutate applies a batch of compare-and-swap mutations in one transaction.
// Каждая entry проверяется независимо: CAS-отказ одной не откатывает
// остальные, отказавшие попадают в Rejected с текущей версией ключа.
func (s *Storage) Mutate(
	ctx context.Context,
	userID string,
	entries []api.MutateEntry,
) (*api.MutateResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	resp := &api.MutateResponse{}
	now := time.Now().UTC()

	for _, entry := range entries {
		accepted, err := s.mutateOne(ctx, tx, userID, entry, now, resp)
		if err != nil {
			return nil, err
		}
		if accepted != nil {
			resp.Accepted = append(resp.Accepted, *accepted)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit mutations: %w", err)
	}

	return resp, nil
}

// mutateOne применяет одну CAS-мутацию внутри транзакции.
// Возвращает принятую запись либо nil, если entry отклонена
// (отказ дописывается в resp.Rejected).
func (s *Storage) mutateOne(
	ctx context.Context,
	tx *sql.Tx,
	userID string,
	entry api.MutateEntry,
	now time.Time,
	resp *api.MutateResponse,
) (*api.Record, error) {
	var currentVersion int64
	exists := true

	err := tx.QueryRowContext(ctx,
		`SELECT version FROM records WHERE user_id = ? AND key = ?`,
		userID, entry.Key,
	).Scan(&currentVersion)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to read current version: %w", err)
		}
		exists = false
	}

	matches := (entry.ExpectedVersion == api.VersionNew && !exists) ||
		(entry.ExpectedVersion != api.VersionNew && exists && entry.ExpectedVersion == currentVersion)
	if !matches {
		rejected := api.RejectedEntry{Key: entry.Key, CurrentVersion: currentVersion}
		if !exists {
			rejected.CurrentVersion = 0
		}
		resp.Rejected = append(resp.Rejected, rejected)
		return nil, nil
	}

	newVersion := int64(1)
	if exists {
		newVersion = currentVersion + 1
	}

	value := entry.Value
	if entry.Tombstone {
		value = nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (user_id, key, value, version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key)
		DO UPDATE SET value = excluded.value, version = excluded.version,
			updated_at = excluded.updated_at
	`, userID, entry.Key, value, newVersion, now)
	if err != nil {
		return nil, fmt.Errorf("failed to write record: %w", err)
	}

	return &api.Record{Key: entry.Key, Value: value, Version: newVersion}, nil
}

// prefixRangeEnd возвращает верхнюю границу диапазона ключей
// с данным префиксом: префикс с инкрементированным последним байтом.
// Ключи — ASCII (валидация не пропускает другое), переполнения нет.
func prefixRangeEnd(prefix string) string {
	if prefix == "" {
		return "\xff"
	}
	end := []byte(prefix)
	end[len(end)-1]++
	return string(end)
}
