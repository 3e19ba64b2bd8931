package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

func newTestFanout() *Fanout {
	return NewFanout(slog.New(slog.DiscardHandler), nil)
}

func testEndpoint(url, token string) *models.PushEndpoint {
	return &models.PushEndpoint{
		ID:        uuid.New().String(),
		UserID:    "user1",
		URL:       url,
		Token:     token,
		CreatedAt: time.Now(),
	}
}

func TestFanout_Notify(t *testing.T) {
	var delivered atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var delivery api.PushDelivery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&delivery))
		assert.Equal(t, "secret-token", delivery.Token)
		assert.Equal(t, "tasks updated", delivery.Payload.Title)

		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFanout()
	count := f.Notify(context.Background(),
		[]*models.PushEndpoint{
			testEndpoint(srv.URL, "secret-token"),
			testEndpoint(srv.URL, "secret-token"),
		},
		api.NotificationPayload{Title: "tasks updated"},
	)

	assert.Equal(t, 2, count)
	assert.EqualValues(t, 2, delivered.Load())
}

func TestFanout_FailedEndpointIsolated(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	f := newTestFanout()
	count := f.Notify(context.Background(),
		[]*models.PushEndpoint{
			testEndpoint(good.URL, "t1"),
			testEndpoint(bad.URL, "t2"),
			testEndpoint("http://127.0.0.1:1/unreachable", "t3"),
		},
		api.NotificationPayload{Title: "tasks updated"},
	)

	// Отказавшие endpoint'ы не мешают успешной доставке
	assert.Equal(t, 1, count)
}

func TestFanout_NoEndpoints(t *testing.T) {
	f := newTestFanout()
	count := f.Notify(context.Background(), nil, api.NotificationPayload{Title: "x"})
	assert.Equal(t, 0, count)
}
