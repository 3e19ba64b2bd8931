package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/pkg/api"
)

func TestRecordStorage_GetRecord_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	record, found, err := s.GetRecord(ctx, userID, "sess1.task.abc")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, record)
}

func TestRecordStorage_Mutate_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	resp, err := s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		Value:           []byte("payload"),
		ExpectedVersion: api.VersionNew,
	}})
	require.NoError(t, err)
	require.Len(t, resp.Accepted, 1)
	assert.Empty(t, resp.Rejected)
	assert.EqualValues(t, 1, resp.Accepted[0].Version)

	record, found, err := s.GetRecord(ctx, userID, "sess1.task.abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), record.Value)
	assert.EqualValues(t, 1, record.Version)
	assert.False(t, record.Tombstone())
}

func TestRecordStorage_Mutate_CASSemantics(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	// Создание
	_, err := s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		Value:           []byte("v1"),
		ExpectedVersion: api.VersionNew,
	}})
	require.NoError(t, err)

	tests := []struct {
		name            string
		expectedVersion int64
		wantAccepted    bool
		wantVersion     int64
	}{
		{
			name:            "matching version accepted",
			expectedVersion: 1,
			wantAccepted:    true,
			wantVersion:     2,
		},
		{
			name:            "stale version rejected",
			expectedVersion: 1,
			wantAccepted:    false,
			wantVersion:     2, // текущая версия в отказе
		},
		{
			name:            "version_new on existing key rejected",
			expectedVersion: api.VersionNew,
			wantAccepted:    false,
			wantVersion:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Mutate(ctx, userID, []api.MutateEntry{{
				Key:             "sess1.task.abc",
				Value:           []byte("next"),
				ExpectedVersion: tt.expectedVersion,
			}})
			require.NoError(t, err)

			if tt.wantAccepted {
				require.Len(t, resp.Accepted, 1)
				assert.Equal(t, tt.wantVersion, resp.Accepted[0].Version)
			} else {
				require.Len(t, resp.Rejected, 1)
				assert.Equal(t, tt.wantVersion, resp.Rejected[0].CurrentVersion)
			}
		})
	}
}

func TestRecordStorage_Mutate_PartialBatch(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	_, err := s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.a",
		Value:           []byte("a"),
		ExpectedVersion: api.VersionNew,
	}})
	require.NoError(t, err)

	// Одна entry проходит, другая отказывает — batch не атомарен
	resp, err := s.Mutate(ctx, userID, []api.MutateEntry{
		{Key: "sess1.task.a", Value: []byte("a2"), ExpectedVersion: 99},
		{Key: "sess1.task.b", Value: []byte("b"), ExpectedVersion: api.VersionNew},
	})
	require.NoError(t, err)
	require.Len(t, resp.Accepted, 1)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "sess1.task.b", resp.Accepted[0].Key)
	assert.Equal(t, "sess1.task.a", resp.Rejected[0].Key)

	record, found, err := s.GetRecord(ctx, userID, "sess1.task.b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("b"), record.Value)
}

func TestRecordStorage_Mutate_Tombstone(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	_, err := s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		Value:           []byte("v1"),
		ExpectedVersion: api.VersionNew,
	}})
	require.NoError(t, err)

	resp, err := s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		ExpectedVersion: 1,
		Tombstone:       true,
	}})
	require.NoError(t, err)
	require.Len(t, resp.Accepted, 1)

	// Tombstone читается: версия нужна для CAS при пересоздании
	record, found, err := s.GetRecord(ctx, userID, "sess1.task.abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, record.Tombstone())
	assert.EqualValues(t, 2, record.Version)

	// Пересоздание через VersionNew отклоняется — lineage продолжается
	resp, err = s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		Value:           []byte("recreated"),
		ExpectedVersion: api.VersionNew,
	}})
	require.NoError(t, err)
	require.Len(t, resp.Rejected, 1)

	resp, err = s.Mutate(ctx, userID, []api.MutateEntry{{
		Key:             "sess1.task.abc",
		Value:           []byte("recreated"),
		ExpectedVersion: 2,
	}})
	require.NoError(t, err)
	require.Len(t, resp.Accepted, 1)
	assert.EqualValues(t, 3, resp.Accepted[0].Version)
}

func TestRecordStorage_ScanRecords(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)
	otherID := createTestUser(t, ctx, s)

	seed := []api.MutateEntry{
		{Key: "sess1.task.b", Value: []byte("b"), ExpectedVersion: api.VersionNew},
		{Key: "sess1.task.a", Value: []byte("a"), ExpectedVersion: api.VersionNew},
		{Key: "sess1.key", Value: []byte("k"), ExpectedVersion: api.VersionNew},
		{Key: "sess2.task.c", Value: []byte("c"), ExpectedVersion: api.VersionNew},
	}
	_, err := s.Mutate(ctx, userID, seed)
	require.NoError(t, err)

	// Запись другого пользователя под тем же префиксом невидима
	_, err = s.Mutate(ctx, otherID, []api.MutateEntry{
		{Key: "sess1.task.z", Value: []byte("z"), ExpectedVersion: api.VersionNew},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		prefix   string
		limit    int
		wantKeys []string
	}{
		{
			name:     "prefix scan ordered by key",
			prefix:   "sess1.task.",
			wantKeys: []string{"sess1.task.a", "sess1.task.b"},
		},
		{
			name:     "namespace prefix",
			prefix:   "sess1.",
			wantKeys: []string{"sess1.key", "sess1.task.a", "sess1.task.b"},
		},
		{
			name:     "limit applied",
			prefix:   "sess1.",
			limit:    2,
			wantKeys: []string{"sess1.key", "sess1.task.a"},
		},
		{
			name:     "empty prefix returns everything",
			prefix:   "",
			wantKeys: []string{"sess1.key", "sess1.task.a", "sess1.task.b", "sess2.task.c"},
		},
		{
			name:     "no matches",
			prefix:   "sess3.",
			wantKeys: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := s.ScanRecords(ctx, userID, tt.prefix, tt.limit)
			require.NoError(t, err)

			var keys []string
			for _, r := range records {
				keys = append(keys, r.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestRecordStorage_ScanRecords_IncludesTombstones(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	userID := createTestUser(t, ctx, s)

	_, err := s.Mutate(ctx, userID, []api.MutateEntry{
		{Key: "sess1.task.a", Value: []byte("a"), ExpectedVersion: api.VersionNew},
	})
	require.NoError(t, err)
	_, err = s.Mutate(ctx, userID, []api.MutateEntry{
		{Key: "sess1.task.a", ExpectedVersion: 1, Tombstone: true},
	})
	require.NoError(t, err)

	records, err := s.ScanRecords(ctx, userID, "sess1.", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Tombstone())
}
