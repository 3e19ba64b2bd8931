package keyring

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/internal/testutil"
	"github.com/iudanet/syncvault/pkg/api"
)

func newTestDirectory(t *testing.T) (*Directory, *testutil.MemStore, *crypto.KeyPair) {
	t.Helper()

	keyPair, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	store := testutil.NewMemStore()
	logger := slog.New(slog.DiscardHandler)

	return New(store, keyPair, logger), store, keyPair
}

// putSessionKey кладет в хранилище session key record, запечатанную
// под публичный ключ получателя, и возвращает симметричный ключ
func putSessionKey(
	t *testing.T,
	store *testutil.MemStore,
	sessionID string,
	recipientPub []byte,
	version int64,
) []byte {
	t.Helper()

	sessionKey, err := crypto.GenerateSessionKey()
	require.NoError(t, err)

	senderPub, encrypted, err := crypto.WrapSessionKey(sessionKey, recipientPub)
	require.NoError(t, err)

	value, err := json.Marshal(models.SessionKeyRecord{
		SessionID:    sessionID,
		SenderPub:    base64.StdEncoding.EncodeToString(senderPub),
		EncryptedKey: base64.StdEncoding.EncodeToString(encrypted),
	})
	require.NoError(t, err)

	store.Put(models.SessionKeyKey(sessionID), value, version)
	return sessionKey
}

func TestResolveKey_NoKeyAvailable(t *testing.T) {
	ctx := context.Background()
	dir, store, keyPair := newTestDirectory(t)

	// Записи нет — ErrNoKeyAvailable, вызывающий ждет появления ключа
	_, err := dir.ResolveKey(ctx, "sess1")
	assert.ErrorIs(t, err, ErrNoKeyAvailable)

	// После появления записи тот же Directory резолвит ключ
	want := putSessionKey(t, store, "sess1", keyPair.Public, 1)

	got, err := dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolveKey_Memoized(t *testing.T) {
	ctx := context.Background()
	dir, store, keyPair := newTestDirectory(t)

	want := putSessionKey(t, store, "sess1", keyPair.Public, 1)

	first, err := dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, want, first)

	// Подменяем запись в хранилище: без Observe кеш остается в силе
	putSessionKey(t, store, "sess1", keyPair.Public, 2)

	second, err := dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveKey_WrongRecipient(t *testing.T) {
	ctx := context.Background()
	dir, store, _ := newTestDirectory(t)

	// Запись запечатана под чужой публичный ключ
	other, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	putSessionKey(t, store, "sess1", other.Public, 1)

	_, err = dir.ResolveKey(ctx, "sess1")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestObserve_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	dir, store, keyPair := newTestDirectory(t)

	putSessionKey(t, store, "sess1", keyPair.Public, 1)
	old, err := dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)

	// Ротация: новая запись с большей версией
	rotated := putSessionKey(t, store, "sess1", keyPair.Public, 2)

	// Observe со старой версией кеш не трогает
	dir.Observe("sess1", 1)
	got, err := dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, old, got)

	dir.Observe("sess1", 2)
	got, err = dir.ResolveKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, rotated, got)
}

func TestEnsureKey_CreatesOnce(t *testing.T) {
	ctx := context.Background()
	dir, store, _ := newTestDirectory(t)

	key1, err := dir.EnsureKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Len(t, key1, crypto.KeySize)
	assert.EqualValues(t, 1, store.Version(models.SessionKeyKey("sess1")))

	// Повторный вызов возвращает тот же ключ, версия не растет
	key2, err := dir.EnsureKey(ctx, "sess1")
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
	assert.EqualValues(t, 1, store.Version(models.SessionKeyKey("sess1")))
}

func TestEnsureKey_LosesCreationRace(t *testing.T) {
	ctx := context.Background()
	dir, store, keyPair := newTestDirectory(t)

	// Конкурент создает запись между ResolveKey и Mutate:
	// CAS на VersionNew проигрывается, читается победившая запись
	var winner []byte
	store.MutateHook = func(_ []api.MutateEntry) {
		if store.Version(models.SessionKeyKey("sess1")) == 0 {
			winner = putSessionKey(t, store, "sess1", keyPair.Public, 1)
		}
	}

	got, err := dir.EnsureKey(ctx, "sess1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, winner, got)
}
