// Package index поддерживает инвариант index-записи: каждый живой
// sibling задачи числится в индексе ровно один раз, tombstone —
// ни разу. Все мутации задач проходят через Maintainer, который
// пишет sibling и index в правильном порядке и разрешает CAS-гонки
// ограниченным числом повторов.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

var (
	// ErrConflict возвращается после исчерпания CAS-повторов.
	// Вызывающий может повторить операцию или запустить Rebuild.
	ErrConflict = errors.New("index update conflict")

	// ErrTaskNotFound — sibling отсутствует или tombstone
	ErrTaskNotFound = errors.New("task not found")
)

const (
	casMaxRetries  = 5
	casBackoffBase = 20 * time.Millisecond
)

// Store — минимальный контракт versioned-хранилища, который нужен
// maintainer'у. Реализуется и серверным storage, и клиентским
// api.Client: maintainer работает по обе стороны провода.
type Store interface {
	GetRecord(ctx context.Context, key string) (*models.Record, bool, error)
	ScanRecords(ctx context.Context, prefix string, limit int) ([]models.Record, error)
	Mutate(ctx context.Context, entries []api.MutateEntry) (*api.MutateResponse, error)
}

// KeyResolver выдает session-ключ для шифрования payload'ов
type KeyResolver interface {
	ResolveKey(ctx context.Context, sessionID string) ([]byte, error)
}

// Maintainer выполняет мутации задач: сначала sibling, затем index.
// Мутации одного namespace сериализуются внутри процесса, CAS-гонки
// с другими процессами разрешаются повторами с экспоненциальной
// задержкой.
type Maintainer struct {
	store  Store
	keys   KeyResolver
	logger *slog.Logger

	mu         sync.Mutex
	namespaces map[string]*sync.Mutex
}

func NewMaintainer(store Store, keys KeyResolver, logger *slog.Logger) *Maintainer {
	return &Maintainer{
		store:      store,
		keys:       keys,
		logger:     logger,
		namespaces: make(map[string]*sync.Mutex),
	}
}

// nsLock возвращает mutex для namespace (sessionID).
// Один writer на namespace внутри процесса: CAS-повторы остаются
// только для межпроцессных гонок.
func (m *Maintainer) nsLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.namespaces[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.namespaces[sessionID] = lock
	}
	return lock
}

// Add создает новую задачу: пишет sibling-запись, затем дописывает
// ее id в конец соответствующего статус-списка index-записи.
// Возвращает созданную задачу.
func (m *Maintainer) Add(ctx context.Context, sessionID, title string) (*models.Task, error) {
	lock := m.nsLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session key: %w", err)
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.New().String(),
		Title:     title,
		Status:    models.TaskStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.writeTask(ctx, sessionID, key, task, api.VersionNew); err != nil {
		return nil, err
	}

	err = m.updateIndex(ctx, sessionID, key, func(ix *models.TaskIndex) error {
		ix.Append(task.ID, task.TargetList())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// SetDone переключает флаг выполнения задачи. Index не меняется:
// done — свойство sibling, не порядка.
func (m *Maintainer) SetDone(ctx context.Context, sessionID, taskID string, done bool) error {
	lock := m.nsLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session key: %w", err)
	}

	return m.mutateTask(ctx, sessionID, key, taskID, func(task *models.Task) {
		task.Done = done
	})
}

// Move переводит задачу между статус-списками: обновляет поле Status
// в sibling-записи, затем переносит id в конец целевого списка index.
// Status в sibling обновляется первым, чтобы rebuild, запущенный
// между двумя записями, собрал согласованный индекс.
func (m *Maintainer) Move(ctx context.Context, sessionID, taskID, toStatus string) error {
	if toStatus != models.TaskStatusActive && toStatus != models.TaskStatusArchived {
		return fmt.Errorf("unknown task status %q", toStatus)
	}

	lock := m.nsLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session key: %w", err)
	}

	err = m.mutateTask(ctx, sessionID, key, taskID, func(task *models.Task) {
		task.Status = toStatus
	})
	if err != nil {
		return err
	}

	return m.updateIndex(ctx, sessionID, key, func(ix *models.TaskIndex) error {
		ix.Move(taskID, toStatus)
		return nil
	})
}

// Remove удаляет задачу: tombstone на sibling, затем удаление id
// из index. Порядок фиксирован — сначала sibling: если между двумя
// записями кто-то прочитает index, read-side репарация отфильтрует
// осиротевший id.
func (m *Maintainer) Remove(ctx context.Context, sessionID, taskID string) error {
	lock := m.nsLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session key: %w", err)
	}

	taskKey := models.TaskKey(sessionID, taskID)
	err = m.withCASRetry(ctx, func(ctx context.Context) error {
		record, found, err := m.store.GetRecord(ctx, taskKey)
		if err != nil {
			return fmt.Errorf("get task record: %w", err)
		}
		if !found || record.Tombstone() {
			return ErrTaskNotFound
		}

		resp, err := m.store.Mutate(ctx, []api.MutateEntry{{
			Key:             taskKey,
			ExpectedVersion: record.Version,
			Tombstone:       true,
		}})
		if err != nil {
			return fmt.Errorf("tombstone task record: %w", err)
		}
		return rejectedToRetryable(resp)
	})
	if err != nil {
		return err
	}

	return m.updateIndex(ctx, sessionID, key, func(ix *models.TaskIndex) error {
		ix.Remove(taskID)
		return nil
	})
}

// writeTask пишет sibling-запись задачи с ожидаемой версией
func (m *Maintainer) writeTask(
	ctx context.Context,
	sessionID string,
	sessionKey []byte,
	task *models.Task,
	expectedVersion int64,
) error {
	plaintext, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	value, err := crypto.SealPayload(plaintext, sessionKey)
	if err != nil {
		return fmt.Errorf("seal task payload: %w", err)
	}

	resp, err := m.store.Mutate(ctx, []api.MutateEntry{{
		Key:             models.TaskKey(sessionID, task.ID),
		Value:           value,
		ExpectedVersion: expectedVersion,
	}})
	if err != nil {
		return fmt.Errorf("write task record: %w", err)
	}
	if len(resp.Rejected) > 0 {
		return fmt.Errorf("task %s already exists: %w", task.ID, ErrConflict)
	}
	return nil
}

// mutateTask выполняет read-modify-write над sibling-записью задачи
// с CAS-повторами
func (m *Maintainer) mutateTask(
	ctx context.Context,
	sessionID string,
	sessionKey []byte,
	taskID string,
	modify func(*models.Task),
) error {
	taskKey := models.TaskKey(sessionID, taskID)

	return m.withCASRetry(ctx, func(ctx context.Context) error {
		record, found, err := m.store.GetRecord(ctx, taskKey)
		if err != nil {
			return fmt.Errorf("get task record: %w", err)
		}
		if !found || record.Tombstone() {
			return ErrTaskNotFound
		}

		task, err := decodeTask(record, sessionKey)
		if err != nil {
			return err
		}

		modify(task)
		task.UpdatedAt = time.Now().UTC()

		plaintext, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("marshal task: %w", err)
		}
		value, err := crypto.SealPayload(plaintext, sessionKey)
		if err != nil {
			return fmt.Errorf("seal task payload: %w", err)
		}

		resp, err := m.store.Mutate(ctx, []api.MutateEntry{{
			Key:             taskKey,
			Value:           value,
			ExpectedVersion: record.Version,
		}})
		if err != nil {
			return fmt.Errorf("write task record: %w", err)
		}
		return rejectedToRetryable(resp)
	})
}

// updateIndex выполняет read-modify-write над index-записью.
// Трансформация apply применяется заново на каждом повторе к свежей
// копии индекса, поэтому она обязана быть идемпотентной.
func (m *Maintainer) updateIndex(
	ctx context.Context,
	sessionID string,
	sessionKey []byte,
	apply func(*models.TaskIndex) error,
) error {
	indexKey := models.TaskIndexKey(sessionID)

	return m.withCASRetry(ctx, func(ctx context.Context) error {
		record, found, err := m.store.GetRecord(ctx, indexKey)
		if err != nil {
			return fmt.Errorf("get index record: %w", err)
		}

		ix := &models.TaskIndex{}
		expectedVersion := api.VersionNew
		if found && !record.Tombstone() {
			ix, err = decodeIndex(record, sessionKey)
			if err != nil {
				return err
			}
			expectedVersion = record.Version
		} else if found {
			// tombstone: lineage версий продолжается
			expectedVersion = record.Version
		}

		if err := apply(ix); err != nil {
			return err
		}

		value, err := encodeIndex(ix, sessionKey)
		if err != nil {
			return err
		}

		resp, err := m.store.Mutate(ctx, []api.MutateEntry{{
			Key:             indexKey,
			Value:           value,
			ExpectedVersion: expectedVersion,
		}})
		if err != nil {
			return fmt.Errorf("write index record: %w", err)
		}
		return rejectedToRetryable(resp)
	})
}

// withCASRetry повторяет f с экспоненциальной задержкой, пока та
// возвращает retryable-ошибку (CAS-отказ). После исчерпания повторов
// наружу выходит ErrConflict.
func (m *Maintainer) withCASRetry(ctx context.Context, f func(context.Context) error) error {
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewExponential(casBackoffBase))
	return retry.Do(ctx, backoff, f)
}

// rejectedToRetryable превращает CAS-отказ в retryable ErrConflict
func rejectedToRetryable(resp *api.MutateResponse) error {
	if len(resp.Rejected) == 0 {
		return nil
	}
	r := resp.Rejected[0]
	return retry.RetryableError(fmt.Errorf(
		"key %s rejected at version %d: %w", r.Key, r.CurrentVersion, ErrConflict))
}

func decodeTask(record *models.Record, sessionKey []byte) (*models.Task, error) {
	plaintext, err := crypto.OpenPayload(record.Value, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("open task payload %s: %w", record.Key, err)
	}
	var task models.Task
	if err := json.Unmarshal(plaintext, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", record.Key, err)
	}
	return &task, nil
}

func decodeIndex(record *models.Record, sessionKey []byte) (*models.TaskIndex, error) {
	plaintext, err := crypto.OpenPayload(record.Value, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("open index payload: %w", err)
	}
	var ix models.TaskIndex
	if err := json.Unmarshal(plaintext, &ix); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return &ix, nil
}

func encodeIndex(ix *models.TaskIndex, sessionKey []byte) ([]byte, error) {
	plaintext, err := json.Marshal(ix)
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	value, err := crypto.SealPayload(plaintext, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("seal index payload: %w", err)
	}
	return value, nil
}
