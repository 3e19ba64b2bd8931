// Package testutil содержит in-memory реализацию контракта
// версионированного хранилища для unit-тестов потребительских
// компонентов (index maintainer, keyring, sync client).
// Семантика CAS идентична серверному sqlite-хранилищу.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// MemStore потокобезопасное in-memory версионированное хранилище
type MemStore struct {
	mu      sync.Mutex
	records map[string]*models.Record

	// MutateHook вызывается перед применением каждого batch.
	// Позволяет тестам вклиниваться между read и write фазами
	// read-modify-write цикла (моделирование конкурентных writer'ов).
	MutateHook func(entries []api.MutateEntry)
}

// NewMemStore создает пустое хранилище
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*models.Record)}
}

// GetRecord возвращает запись по ключу
func (s *MemStore) GetRecord(ctx context.Context, key string) (*models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

// ScanRecords возвращает записи с данным префиксом в порядке ключей,
// как серверное sqlite-хранилище
func (s *MemStore) ScanRecords(ctx context.Context, prefix string, limit int) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var result []models.Record
	for _, key := range keys {
		result = append(result, *s.records[key].Clone())
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Mutate применяет batch мутаций с per-key compare-and-swap.
// Каждая запись применяется независимо, cross-key атомарности нет.
func (s *MemStore) Mutate(ctx context.Context, entries []api.MutateEntry) (*api.MutateResponse, error) {
	if s.MutateHook != nil {
		s.MutateHook(entries)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &api.MutateResponse{}
	for _, entry := range entries {
		existing, exists := s.records[entry.Key]

		currentVersion := int64(0)
		if exists {
			currentVersion = existing.Version
		}

		// CAS: VersionNew означает "ключ не должен существовать"
		accepted := false
		if entry.ExpectedVersion == api.VersionNew {
			accepted = !exists
		} else {
			accepted = exists && entry.ExpectedVersion == currentVersion
		}

		if !accepted {
			resp.Rejected = append(resp.Rejected, api.RejectedEntry{
				Key:            entry.Key,
				CurrentVersion: currentVersion,
			})
			continue
		}

		record := &models.Record{
			Key:       entry.Key,
			Version:   currentVersion + 1,
			UpdatedAt: time.Now(),
		}
		if !entry.Tombstone {
			record.Value = append([]byte(nil), entry.Value...)
		}

		s.records[entry.Key] = record
		resp.Accepted = append(resp.Accepted, api.Record{
			Key:     record.Key,
			Value:   append([]byte(nil), record.Value...),
			Version: record.Version,
		})
	}

	return resp, nil
}

// Put прямая запись в обход CAS — подготовка состояния теста
func (s *MemStore) Put(key string, value []byte, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &models.Record{Key: key, Version: version, UpdatedAt: time.Now()}
	if value != nil {
		record.Value = append([]byte(nil), value...)
	}
	s.records[key] = record
}

// Version возвращает текущую версию ключа (0 если ключа нет)
func (s *MemStore) Version(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok {
		return record.Version
	}
	return 0
}
