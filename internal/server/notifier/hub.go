// Package notifier раздает события изменений записей подписчикам
// одного пользователя. Доставка — наилучшая попытка: медленный
// подписчик отключается, а не тормозит остальных; после переподключения
// клиент восстанавливает состояние полным resync.
package notifier

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/syncvault/internal/server/metrics"
	"github.com/iudanet/syncvault/pkg/api"
)

// subscriberBuffer — емкость очереди одного подписчика.
// Переполнение означает, что подписчик не вычитывает события.
const subscriberBuffer = 64

// Subscription — живая подписка на события пользователя.
// Канал C закрывается hub'ом при отключении подписчика.
type Subscription struct {
	C      <-chan api.EventBatch
	id     string
	userID string
	ch     chan api.EventBatch
}

// Hub хранит подписчиков по пользователям и рассылает батчи событий
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // userID -> subID -> sub
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Hub{
		logger:  logger,
		metrics: m,
		subs:    make(map[string]map[string]*Subscription),
	}
}

// Subscribe регистрирует нового подписчика пользователя
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		userID: userID,
		ch:     make(chan api.EventBatch, subscriberBuffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[string]*Subscription)
	}
	h.subs[userID][sub.id] = sub
	h.metrics.SubscribersActive.Inc()

	h.logger.Debug("subscriber attached",
		"user_id", userID,
		"subscription_id", sub.id,
	)
	return sub
}

// Unsubscribe снимает подписку и закрывает ее канал.
// Повторный вызов — no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

// Publish рассылает batch всем подписчикам пользователя.
// Подписчик с переполненной очередью отключается: порядок событий
// внутри очереди важнее полноты, пропуски закрывает полный resync.
func (h *Hub) Publish(userID string, batch api.EventBatch) {
	if len(batch.Events) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.EventsPublished.Inc()

	for _, sub := range h.subs[userID] {
		select {
		case sub.ch <- batch:
		default:
			h.logger.Warn("subscriber queue full, dropping subscriber",
				"user_id", userID,
				"subscription_id", sub.id,
			)
			h.metrics.SubscribersDropped.Inc()
			h.dropLocked(sub)
		}
	}
}

// Subscribers возвращает число активных подписчиков пользователя
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// dropLocked удаляет подписку под уже взятым h.mu
func (h *Hub) dropLocked(sub *Subscription) {
	userSubs := h.subs[sub.userID]
	if _, ok := userSubs[sub.id]; !ok {
		return
	}

	delete(userSubs, sub.id)
	if len(userSubs) == 0 {
		delete(h.subs, sub.userID)
	}
	h.metrics.SubscribersActive.Dec()
	close(sub.ch)
}
