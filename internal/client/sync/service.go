// Package sync реализует клиентский цикл синхронизации: полный
// resync через prefix-scan, затем websocket подписка на события.
// События эфемерны, replay не существует, поэтому любой обрыв
// транспорта ведет обратно к полному resync.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	httpapi "github.com/iudanet/syncvault/internal/client/api"
	"github.com/iudanet/syncvault/internal/client/storage"
	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/keyring"
	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

const (
	resyncMaxRetries      = 5
	defaultBackoffBase    = 500 * time.Millisecond
	defaultReconnectDelay = time.Second
)

// Stream абстрагирует открытую подписку на события
type Stream interface {
	Events() <-chan api.EventBatch
	Close() error
}

// Client определяет операции сервера, нужные циклу синхронизации
type Client interface {
	ScanRecords(ctx context.Context, prefix string, limit int) ([]models.Record, error)
	GetRecord(ctx context.Context, key string) (*models.Record, bool, error)
	Subscribe(ctx context.Context) (Stream, error)
}

// KeyResolver определяет операции key directory, нужные для
// расшифровки записей и инвалидации при ротации ключа
type KeyResolver interface {
	ResolveKey(ctx context.Context, sessionID string) ([]byte, error)
	Observe(sessionID string, version int64)
}

// apiAdapter адаптирует *api.Client к интерфейсу Client
// (Subscribe возвращает конкретный *EventStream)
type apiAdapter struct {
	*httpapi.Client
}

func (a apiAdapter) Subscribe(ctx context.Context) (Stream, error) {
	return a.Client.Subscribe(ctx)
}

// WrapClient оборачивает HTTP клиент для использования в Service
func WrapClient(c *httpapi.Client) Client {
	return apiAdapter{c}
}

// Update представляет одно примененное изменение локального view.
// Value — расшифрованный plaintext; при невозможности расшифровать
// (ключ запечатан не для нас) Unavailable=true и Value=nil.
type Update struct {
	Key         string
	Value       []byte
	Version     int64
	Tombstone   bool
	Unavailable bool
}

// Handler вызывается на каждое примененное изменение view.
// Вызовы сериализованы: handler не обязан быть потокобезопасным.
type Handler func(Update)

// viewEntry хранит расшифрованное состояние одного ключа
type viewEntry struct {
	value       []byte
	version     int64
	unavailable bool
}

// Service поддерживает локальный расшифрованный view одного
// namespace (sessionID) и его персистентный ciphertext-кеш
type Service struct {
	client Client
	keys   KeyResolver
	cache  storage.RecordCache
	logger *slog.Logger

	backoffBase    time.Duration
	reconnectDelay time.Duration

	mu   sync.RWMutex
	view map[string]viewEntry
}

// NewService создает сервис синхронизации.
// cache может быть nil — тогда снимки не персистятся (режим watch
// без локального кеша).
func NewService(client Client, keys KeyResolver, cache storage.RecordCache, logger *slog.Logger) *Service {
	return &Service{
		client:         client,
		keys:           keys,
		cache:          cache,
		logger:         logger,
		backoffBase:    defaultBackoffBase,
		reconnectDelay: defaultReconnectDelay,
		view:           make(map[string]viewEntry),
	}
}

// Snapshot возвращает копию текущего view: ключ -> plaintext.
// Ключи с недоступным содержимым не включаются.
func (s *Service) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string][]byte, len(s.view))
	for key, entry := range s.view {
		if entry.unavailable {
			continue
		}
		value := make([]byte, len(entry.value))
		copy(value, entry.value)
		snapshot[key] = value
	}
	return snapshot
}

// Resync выполняет полную синхронизацию namespace: prefix-scan
// всех записей сессии, замена персистентного кеша и перестройка
// view. Handler получает изменение на каждый ключ, чья версия
// новее уже виденной.
func (s *Service) Resync(ctx context.Context, sessionID string, handler Handler) error {
	prefix := sessionID + "."

	records, err := s.client.ScanRecords(ctx, prefix, 0)
	if err != nil {
		return fmt.Errorf("failed to scan records: %w", err)
	}

	if s.cache != nil {
		snapshot := make([]*models.Record, 0, len(records))
		for i := range records {
			snapshot = append(snapshot, &records[i])
		}
		if err := s.cache.ReplaceRecords(ctx, sessionID, snapshot); err != nil {
			s.logger.Warn("failed to persist resync snapshot",
				"session_id", sessionID,
				"error", err)
			// Кеш — ускорение, не источник истины; продолжаем
		}
	}

	// Сортируем так, чтобы session key record обработалась первой:
	// расшифровка siblings зависит от ключа сессии
	sort.Slice(records, func(i, j int) bool {
		return models.IsSessionKeyKey(records[i].Key) && !models.IsSessionKeyKey(records[j].Key)
	})

	applied := 0
	for i := range records {
		record := &records[i]

		if models.IsSessionKeyKey(record.Key) {
			s.keys.Observe(sessionID, record.Version)
			continue
		}

		if s.apply(ctx, sessionID, record.Key, record.Value, record.Version, record.Tombstone(), handler) {
			applied++
		}
	}

	s.logger.Info("resync completed",
		"session_id", sessionID,
		"records", len(records),
		"applied", applied)

	return nil
}

// Run входит в цикл синхронизации: resync, подписка, обработка
// событий до обрыва, снова resync. Возвращается при отмене контекста
// или когда resync исчерпал повторы (сервер стабильно недоступен).
func (s *Service) Run(ctx context.Context, sessionID string, handler Handler) error {
	for {
		if err := s.runOnce(ctx, sessionID, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("event stream closed, resyncing", "session_id", sessionID)

		select {
		case <-time.After(s.reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runOnce выполняет одну итерацию: resync с повторами, подписка,
// чтение событий до закрытия канала. nil означает штатный обрыв
// (нужен новый resync), ошибка — эскалацию.
func (s *Service) runOnce(ctx context.Context, sessionID string, handler Handler) error {
	backoff := retry.WithMaxRetries(resyncMaxRetries, retry.NewExponential(s.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.Resync(ctx, sessionID, handler); err != nil {
			s.logger.Warn("resync attempt failed",
				"session_id", sessionID,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resync failed after retries: %w", err)
	}

	stream, err := s.client.Subscribe(ctx)
	if err != nil {
		// Обрыв между resync и подпиской — не эскалация
		s.logger.Warn("subscribe failed, will resync",
			"session_id", sessionID,
			"error", err)
		return nil
	}
	defer func() { _ = stream.Close() }()

	for {
		select {
		case batch, ok := <-stream.Events():
			if !ok {
				return nil
			}
			s.handleBatch(ctx, sessionID, batch, handler)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleBatch применяет события batch к view
func (s *Service) handleBatch(ctx context.Context, sessionID string, batch api.EventBatch, handler Handler) {
	for _, event := range batch.Events {
		// События чужих namespace игнорируются: подписка общая
		// на пользователя, view — на одну сессию
		if models.SessionIDFromKey(event.Key) != sessionID {
			continue
		}

		switch {
		case models.IsSessionKeyKey(event.Key):
			// Ротация ключа: следующий ResolveKey перечитает запись
			s.keys.Observe(sessionID, event.Version)

		case models.IsTaskIndexKey(event.Key):
			// Index никогда не диффается по событию: перечитываем
			// запись целиком
			s.refetchIndex(ctx, sessionID, event.Key, handler)

		default:
			value := event.Value
			if event.Tombstone {
				value = nil
			}
			s.persist(ctx, sessionID, &models.Record{
				Key:     event.Key,
				Value:   value,
				Version: event.Version,
			})
			s.apply(ctx, sessionID, event.Key, value, event.Version, event.Tombstone, handler)
		}
	}
}

// refetchIndex перечитывает index-запись с сервера и применяет ее
func (s *Service) refetchIndex(ctx context.Context, sessionID, key string, handler Handler) {
	record, found, err := s.client.GetRecord(ctx, key)
	if err != nil {
		s.logger.Warn("failed to refetch index record",
			"key", key,
			"error", err)
		return
	}
	if !found {
		return
	}

	s.persist(ctx, sessionID, record)
	s.apply(ctx, sessionID, record.Key, record.Value, record.Version, record.Tombstone(), handler)
}

// apply применяет одно изменение к view. Возвращает true, если view
// изменился (версия новее уже виденной). Ошибка расшифровки помечает
// ключ как "content unavailable" и не прерывает цикл.
func (s *Service) apply(ctx context.Context, sessionID, key string, value []byte, version int64, tombstone bool, handler Handler) bool {
	s.mu.Lock()
	if existing, ok := s.view[key]; ok && version <= existing.version {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	update := Update{Key: key, Version: version, Tombstone: tombstone}

	if !tombstone {
		plaintext, err := s.decrypt(ctx, sessionID, value)
		if err != nil {
			if !errors.Is(err, crypto.ErrDecryptionFailed) && !errors.Is(err, keyring.ErrNoKeyAvailable) {
				s.logger.Warn("failed to decrypt record",
					"key", key,
					"error", err)
			} else {
				s.logger.Debug("record content unavailable",
					"key", key,
					"version", version)
			}
			update.Unavailable = true
		} else {
			update.Value = plaintext
		}
	}

	s.mu.Lock()
	if tombstone {
		delete(s.view, key)
	} else {
		s.view[key] = viewEntry{
			value:       update.Value,
			version:     version,
			unavailable: update.Unavailable,
		}
	}
	s.mu.Unlock()

	if handler != nil {
		handler(update)
	}
	return true
}

// decrypt расшифровывает значение записи session-ключом
func (s *Service) decrypt(ctx context.Context, sessionID string, value []byte) ([]byte, error) {
	key, err := s.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return crypto.OpenPayload(value, key)
}

// persist сохраняет ciphertext запись в локальный кеш
func (s *Service) persist(ctx context.Context, sessionID string, record *models.Record) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveRecord(ctx, sessionID, record); err != nil {
		s.logger.Warn("failed to cache record",
			"key", record.Key,
			"error", err)
	}
}
