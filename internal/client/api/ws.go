package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/syncvault/pkg/api"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	// wsPingWait — сколько ждем очередного ping'а сервера, прежде чем
	// считать соединение мертвым. Должен быть больше серверного pingPeriod.
	wsPingWait   = 60 * time.Second
	streamBuffer = 64
)

// EventStream представляет открытую websocket подписку на события
// изменений. Batches приходят в C; канал закрывается при обрыве
// соединения или Close. События эфемерны — после переподключения
// потребитель обязан выполнить полный resync.
type EventStream struct {
	C    <-chan api.EventBatch
	conn *websocket.Conn
	done chan struct{}
}

// Subscribe открывает websocket подписку на события изменений
// текущего пользователя. Требует установленного access token.
func (c *Client) Subscribe(ctx context.Context) (*EventStream, error) {
	token := c.AccessToken()
	if token == "" {
		return nil, fmt.Errorf("subscribe requires authentication")
	}

	wsURL, err := toWebsocketURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, wsURL+"/api/v1/subscribe", header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("subscribe handshake failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("subscribe dial failed: %w", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	ch := make(chan api.EventBatch, streamBuffer)
	stream := &EventStream{
		C:    ch,
		conn: conn,
		done: make(chan struct{}),
	}

	// Сервер шлет периодические ping'и: каждый ping продлевает read
	// deadline, ответный pong подтверждает серверу, что клиент жив
	conn.SetPingHandler(func(appData string) error {
		if err := conn.SetReadDeadline(time.Now().Add(wsPingWait)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPingWait))

	go stream.readPump(ch)

	return stream, nil
}

// readPump читает batches из соединения до первой ошибки
func (s *EventStream) readPump(ch chan<- api.EventBatch) {
	defer close(ch)

	for {
		var batch api.EventBatch
		if err := s.conn.ReadJSON(&batch); err != nil {
			return
		}

		select {
		case ch <- batch:
		case <-s.done:
			return
		}
	}
}

// Events возвращает канал входящих batches
func (s *EventStream) Events() <-chan api.EventBatch {
	return s.C
}

// Close закрывает подписку и освобождает соединение
func (s *EventStream) Close() error {
	close(s.done)
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

// toWebsocketURL конвертирует http(s) базовый URL в ws(s)
func toWebsocketURL(baseURL string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://"), nil
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://"), nil
	default:
		return "", fmt.Errorf("unsupported base URL scheme: %s", baseURL)
	}
}
