package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/syncvault/internal/server/notifier"
)

const (
	// writeWait — таймаут на запись одного сообщения
	writeWait = 10 * time.Second
	// pongWait — сколько ждем pong от клиента
	pongWait = 60 * time.Second
	// pingPeriod — период ping'ов, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10
)

// EventSource управляет подписками на события пользователя
type EventSource interface {
	Subscribe(userID string) *notifier.Subscription
	Unsubscribe(sub *notifier.Subscription)
}

// SubscribeHandler отдает события изменений по websocket
type SubscribeHandler struct {
	logger   *slog.Logger
	events   EventSource
	upgrader websocket.Upgrader
}

// NewSubscribeHandler создает новый handler для подписки на события
func NewSubscribeHandler(logger *slog.Logger, events EventSource) *SubscribeHandler {
	return &SubscribeHandler{
		logger: logger,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Subscribe обрабатывает GET /api/v1/subscribe
// Апгрейдит соединение до websocket и стримит батчи событий в JSON.
// Соединение закрывается, когда hub отключает подписчика (медленное
// чтение) или когда клиент уходит; клиент переподключается с полным
// resync, поэтому закрытие безопасно.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам пишет ответ клиенту
		h.logger.WarnContext(ctx, "websocket upgrade failed", slog.Any("error", err))
		return
	}

	sub := h.events.Subscribe(userID)
	defer h.events.Unsubscribe(sub)

	h.logger.InfoContext(ctx, "websocket subscriber connected", slog.String("user_id", userID))

	// Read pump: вычитываем и отбрасываем входящие, чтобы заметить
	// закрытие со стороны клиента и обработать pong'и
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writePump(conn, sub, done)

	_ = conn.Close()
	h.logger.InfoContext(ctx, "websocket subscriber disconnected", slog.String("user_id", userID))
}

// writePump шлет батчи событий и периодические ping'и
func (h *SubscribeHandler) writePump(
	conn *websocket.Conn,
	sub *notifier.Subscription,
	done <-chan struct{},
) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case batch, open := <-sub.C:
			if !open {
				// Hub отключил подписчика
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscriber dropped"))
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(batch); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
