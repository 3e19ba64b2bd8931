package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/internal/models"
)

// setupTestStorage создает in-memory хранилище с примененными миграциями
func setupTestStorage(t *testing.T) (*Storage, func()) {
	t.Helper()

	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)

	return s, func() {
		_ = s.Close()
	}
}

// createTestUser создает пользователя и возвращает его ID
func createTestUser(t *testing.T, ctx context.Context, s *Storage) string {
	t.Helper()

	user := &models.User{
		ID:          uuid.New().String(),
		Username:    "user-" + uuid.New().String(),
		AuthKeyHash: "hash",
		PublicSalt:  "salt",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateUser(ctx, user))

	return user.ID
}
