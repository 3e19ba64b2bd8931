package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/pkg/api"
)

func TestClient_Subscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/subscribe", r.URL.Path)
		assert.Equal(t, "Bearer test_token", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		batches := []api.EventBatch{
			{Events: []api.ChangeEvent{{Key: "sess1.task.a", Version: 1, SessionID: "sess1"}}},
			{Events: []api.ChangeEvent{{Key: "sess1.task.a", Version: 2, SessionID: "sess1"}}},
		}
		for _, b := range batches {
			require.NoError(t, conn.WriteJSON(b))
		}

		// Держим соединение, пока клиент не закроет его
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetAccessToken("test_token")

	stream, err := client.Subscribe(context.Background())
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	// Batches приходят в порядке отправки
	for wantVersion := int64(1); wantVersion <= 2; wantVersion++ {
		select {
		case batch := <-stream.C:
			require.Len(t, batch.Events, 1)
			assert.Equal(t, wantVersion, batch.Events[0].Version)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event batch")
		}
	}
}

func TestClient_Subscribe_RespondsToServerPings(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pongs := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		conn.SetPongHandler(func(string) error {
			select {
			case pongs <- struct{}{}:
			default:
			}
			return nil
		})

		// Read pump нужен, чтобы обработать входящий pong
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		require.NoError(t, conn.WriteMessage(websocket.PingMessage, nil))

		// Ждем pong от клиента, затем шлем batch: соединение должно
		// пережить keepalive-обмен
		select {
		case <-pongs:
		case <-time.After(2 * time.Second):
			t.Error("client did not reply with pong")
			return
		}

		batch := api.EventBatch{
			Events: []api.ChangeEvent{{Key: "sess1.task.a", Version: 1, SessionID: "sess1"}},
		}
		require.NoError(t, conn.WriteJSON(batch))

		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetAccessToken("test_token")

	stream, err := client.Subscribe(context.Background())
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	select {
	case batch := <-stream.C:
		require.Len(t, batch.Events, 1)
		assert.Equal(t, "sess1.task.a", batch.Events[0].Key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event batch after ping exchange")
	}
}

func TestClient_Subscribe_RequiresToken(t *testing.T) {
	client := NewClient("http://localhost:8080")

	stream, err := client.Subscribe(context.Background())

	require.Error(t, err)
	assert.Nil(t, stream)
	assert.Contains(t, err.Error(), "requires authentication")
}

func TestClient_Subscribe_ChannelClosedOnDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// Сервер сразу обрывает соединение
		_ = conn.Close()
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.SetAccessToken("test_token")

	stream, err := client.Subscribe(context.Background())
	require.NoError(t, err)

	select {
	case _, ok := <-stream.C:
		assert.False(t, ok, "channel should be closed after disconnect")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed after disconnect")
	}
}

func TestToWebsocketURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
		wantErr bool
	}{
		{name: "http", baseURL: "http://localhost:8080", want: "ws://localhost:8080"},
		{name: "https", baseURL: "https://vault.example.com", want: "wss://vault.example.com"},
		{name: "unsupported", baseURL: "ftp://host", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toWebsocketURL(tt.baseURL)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
