// Package keyring реализует Session Key Directory: отображение
// идентификатора сессии в расшифрованный симметричный ключ.
// Ключи распечатываются лениво из session key records хранилища
// и кешируются по паре (sessionID, keyVersion), так что ротация
// ключа (перезапись записи) подхватывается без перезапуска процесса.
package keyring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// ErrNoKeyAvailable возвращается, когда session key record еще не
// существует: сессия ни разу не отправляла зашифрованных сообщений.
// Это не ошибка для пользователя — "пока нечего расшифровывать".
var ErrNoKeyAvailable = errors.New("no session key available")

// Store определяет операции хранилища, нужные directory
type Store interface {
	// GetRecord возвращает запись по ключу. found=false если записи нет
	GetRecord(ctx context.Context, key string) (record *models.Record, found bool, err error)

	// Mutate отправляет batch мутаций (используется при создании ключа сессии)
	Mutate(ctx context.Context, entries []api.MutateEntry) (*api.MutateResponse, error)
}

// cacheEntry ключ кеша: пара (sessionID, версия session key record)
type cacheEntry struct {
	sessionID  string
	keyVersion int64
}

// Directory кеширующий резолвер session-ключей одного потребителя.
// Кеш per-process и никогда не разделяется между процессами.
type Directory struct {
	store      Store
	keyPair    *crypto.KeyPair
	logger     *slog.Logger
	cache      map[cacheEntry][]byte
	lastSeen   map[string]int64 // sessionID -> версия последней распечатанной записи
	mu         sync.RWMutex
}

// New создает новый Directory. keyPair — асимметричная пара потребителя,
// полученная от identity-слоя (регистрация/login)
func New(store Store, keyPair *crypto.KeyPair, logger *slog.Logger) *Directory {
	return &Directory{
		store:    store,
		keyPair:  keyPair,
		logger:   logger,
		cache:    make(map[cacheEntry][]byte),
		lastSeen: make(map[string]int64),
	}
}

// ResolveKey возвращает симметричный ключ сессии.
// Кеш-попадание возвращается немедленно; при промахе directory читает
// session key record из хранилища, распечатывает его своим приватным
// ключом и мемоизирует результат.
// Ошибки: ErrNoKeyAvailable если записи нет, crypto.ErrDecryptionFailed
// если запись запечатана не для нас.
func (d *Directory) ResolveKey(ctx context.Context, sessionID string) ([]byte, error) {
	d.mu.RLock()
	if version, ok := d.lastSeen[sessionID]; ok {
		if key, ok := d.cache[cacheEntry{sessionID, version}]; ok {
			d.mu.RUnlock()
			return key, nil
		}
	}
	d.mu.RUnlock()

	record, found, err := d.store.GetRecord(ctx, models.SessionKeyKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session key record: %w", err)
	}
	if !found || record.Tombstone() {
		return nil, ErrNoKeyAvailable
	}

	key, err := d.unwrap(record)
	if err != nil {
		return nil, err
	}

	d.remember(sessionID, record.Version, key)
	return key, nil
}

// Observe сообщает directory, что наблюдалась версия session key record.
// Если версия новее закешированной, старая запись кеша сбрасывается и
// следующий ResolveKey перечитает ключ из хранилища. Это канал
// инвалидации для ротации ключей.
func (d *Directory) Observe(sessionID string, version int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastSeen[sessionID]
	if ok && version <= last {
		return
	}

	delete(d.cache, cacheEntry{sessionID, last})
	delete(d.lastSeen, sessionID)

	d.logger.Debug("session key cache invalidated",
		"session_id", sessionID,
		"new_version", version)
}

// EnsureKey возвращает ключ сессии, создавая session key record, если
// ее еще нет. Создание — CAS с expected_version = VersionNew: при
// проигрыше гонки другой стороне читается победившая запись.
func (d *Directory) EnsureKey(ctx context.Context, sessionID string) ([]byte, error) {
	key, err := d.ResolveKey(ctx, sessionID)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoKeyAvailable) {
		return nil, err
	}

	// Записи нет — генерируем и пытаемся создать
	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		return nil, err
	}

	senderPub, encrypted, err := crypto.WrapSessionKey(sessionKey, d.keyPair.Public)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap session key: %w", err)
	}

	skr := models.SessionKeyRecord{
		SessionID:    sessionID,
		SenderPub:    base64.StdEncoding.EncodeToString(senderPub),
		EncryptedKey: base64.StdEncoding.EncodeToString(encrypted),
	}

	value, err := json.Marshal(skr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session key record: %w", err)
	}

	resp, err := d.store.Mutate(ctx, []api.MutateEntry{{
		Key:             models.SessionKeyKey(sessionID),
		Value:           value,
		ExpectedVersion: api.VersionNew,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create session key record: %w", err)
	}

	if len(resp.Accepted) == 1 {
		d.remember(sessionID, resp.Accepted[0].Version, sessionKey)
		d.logger.Info("session key created", "session_id", sessionID)
		return sessionKey, nil
	}

	// Проиграли гонку: кто-то создал запись раньше, читаем ее
	d.logger.Debug("lost session key creation race, re-resolving",
		"session_id", sessionID)
	return d.ResolveKey(ctx, sessionID)
}

// unwrap распечатывает session key record своим приватным ключом
func (d *Directory) unwrap(record *models.Record) ([]byte, error) {
	var skr models.SessionKeyRecord
	if err := json.Unmarshal(record.Value, &skr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session key record: %w", err)
	}

	senderPub, err := base64.StdEncoding.DecodeString(skr.SenderPub)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sender public key: %w", err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(skr.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %w", err)
	}

	return crypto.UnwrapSessionKey(encrypted, d.keyPair.Private, senderPub)
}

func (d *Directory) remember(sessionID string, version int64, key []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Старая версия вытесняется: на сессию живет ровно одна запись кеша
	if last, ok := d.lastSeen[sessionID]; ok && last != version {
		delete(d.cache, cacheEntry{sessionID, last})
	}

	d.lastSeen[sessionID] = version
	d.cache[cacheEntry{sessionID, version}] = key
}
