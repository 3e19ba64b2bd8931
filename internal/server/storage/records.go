package storage

import (
	"context"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// RecordStorage defines interface for versioned record persistence.
// Записи разделены по пользователям: userID — владелец, ключи
// разных пользователей не пересекаются.
type RecordStorage interface {
	// GetRecord retrieves a single record by key.
	// Tombstone-запись возвращается с found=true и nil Value:
	// ее версия нужна клиенту для CAS при пересоздании ключа.
	GetRecord(ctx context.Context, userID, key string) (*models.Record, bool, error)

	// ScanRecords retrieves records with the given key prefix,
	// ordered by key. Tombstones включены. limit <= 0 — без лимита.
	ScanRecords(ctx context.Context, userID, prefix string, limit int) ([]models.Record, error)

	// Mutate applies a batch of compare-and-swap mutations.
	// Каждая запись проверяется и применяется независимо: частичный
	// успех batch'а — нормальный исход, отказы в Rejected.
	// ExpectedVersion == api.VersionNew означает "ключа быть не должно".
	Mutate(ctx context.Context, userID string, entries []api.MutateEntry) (*api.MutateResponse, error)
}
