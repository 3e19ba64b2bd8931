package storage

import (
	"context"

	"github.com/iudanet/syncvault/internal/models"
)

// RecordCache defines interface for the client-side record cache.
// Кеш хранит записи сервера как есть (значения зашифрованы), по
// bucket на namespace. Он read-through: сервер остается единственным
// владельцем данных, кеш лишь ускоряет повторный resync и дает
// офлайн-чтение последнего увиденного состояния.
type RecordCache interface {
	// SaveRecord stores a single record under the namespace
	SaveRecord(ctx context.Context, namespace string, record *models.Record) error

	// GetRecord retrieves a cached record by key
	// Returns ErrRecordNotFound if the key is not cached
	GetRecord(ctx context.Context, namespace, key string) (*models.Record, error)

	// ListRecords returns all cached records of the namespace sorted by key
	ListRecords(ctx context.Context, namespace string) ([]*models.Record, error)

	// ReplaceRecords atomically replaces the namespace contents (full resync)
	ReplaceRecords(ctx context.Context, namespace string, records []*models.Record) error

	// DeleteNamespace drops all cached records of the namespace
	DeleteNamespace(ctx context.Context, namespace string) error
}
