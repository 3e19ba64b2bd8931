package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/internal/server/metrics"
	"github.com/iudanet/syncvault/internal/validation"
	"github.com/iudanet/syncvault/pkg/api"
)

// maxMutateBatch — максимальное число entries в одном mutate-запросе
const maxMutateBatch = 100

// RecordStorage определяет интерфейс для работы с записями
type RecordStorage interface {
	GetRecord(ctx context.Context, userID, key string) (*models.Record, bool, error)
	ScanRecords(ctx context.Context, userID, prefix string, limit int) ([]models.Record, error)
	Mutate(ctx context.Context, userID string, entries []api.MutateEntry) (*api.MutateResponse, error)
}

// EventPublisher рассылает события изменений подписчикам пользователя
type EventPublisher interface {
	Publish(userID string, batch api.EventBatch)
}

// PushNotifier доставляет уведомление на внешние endpoint'ы пользователя
type PushNotifier interface {
	NotifyUser(ctx context.Context, userID string, payload api.NotificationPayload)
}

// KVHandler handles versioned record requests
type KVHandler struct {
	logger  *slog.Logger
	storage RecordStorage
	events  EventPublisher
	push    PushNotifier
	metrics *metrics.Metrics

	// Mutate и Publish одного пользователя выполняются под общим
	// mutex: события уходят подписчикам в порядке версий
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewKVHandler creates a new record handler
func NewKVHandler(
	logger *slog.Logger,
	storage RecordStorage,
	events EventPublisher,
	push PushNotifier,
	m *metrics.Metrics,
) *KVHandler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &KVHandler{
		logger:    logger,
		storage:   storage,
		events:    events,
		push:      push,
		metrics:   m,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Get обрабатывает GET /api/v1/records/{key}
// Возвращает одну запись, включая tombstone — его версия нужна
// клиенту для CAS при пересоздании ключа
func (h *KVHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key := r.PathValue("key")
	if err := validation.ValidateRecordKey(key); err != nil {
		h.logger.WarnContext(ctx, "invalid record key", slog.String("key", key), slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, found, err := h.storage.GetRecord(ctx, userID, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get record", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !found {
		h.sendError(w, "record not found", http.StatusNotFound)
		return
	}

	h.sendJSON(w, api.GetResponse{Record: toAPIRecord(record)}, http.StatusOK)
}

// Scan обрабатывает GET /api/v1/records?prefix=&limit=
// Возвращает записи с данным префиксом ключа в порядке ключей
func (h *KVHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if err := validation.ValidateScanPrefix(prefix); err != nil {
		h.logger.WarnContext(ctx, "invalid scan prefix", slog.String("prefix", prefix), slog.Any("error", err))
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			h.sendError(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
	}

	records, err := h.storage.ScanRecords(ctx, userID, prefix, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to scan records", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ScanResponse{Records: make([]api.Record, 0, len(records))}
	for i := range records {
		resp.Records = append(resp.Records, toAPIRecord(&records[i]))
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// Mutate обрабатывает POST /api/v1/records/mutate
// Применяет batch CAS-мутаций. Каждая entry независима: частичный
// успех — нормальный ответ, отказы возвращаются в rejected.
func (h *KVHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.MutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode mutate request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Entries) == 0 {
		h.sendError(w, "entries are required", http.StatusBadRequest)
		return
	}
	if len(req.Entries) > maxMutateBatch {
		h.sendError(w, "too many entries in batch", http.StatusBadRequest)
		return
	}

	for _, entry := range req.Entries {
		if err := validation.ValidateRecordKey(entry.Key); err != nil {
			h.logger.WarnContext(ctx, "invalid record key",
				slog.String("key", entry.Key), slog.Any("error", err))
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	// Под user lock: подписчики видят события в порядке версий
	lock := h.userLock(userID)
	lock.Lock()
	resp, err := h.storage.Mutate(ctx, userID, req.Entries)
	if err == nil {
		h.publishAccepted(userID, resp)
	}
	lock.Unlock()

	if err != nil {
		h.logger.ErrorContext(ctx, "failed to apply mutations", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.metrics.MutationsTotal.WithLabelValues("accepted").Add(float64(len(resp.Accepted)))
	h.metrics.MutationsTotal.WithLabelValues("rejected").Add(float64(len(resp.Rejected)))

	h.logger.InfoContext(ctx, "mutations applied",
		slog.String("user_id", userID),
		slog.Int("accepted", len(resp.Accepted)),
		slog.Int("rejected", len(resp.Rejected)))

	// Push только про живые task-записи: index, session key и
	// tombstone-мутации не дают пользователю нового контента
	if updated := pushableMutations(resp.Accepted); updated > 0 && h.push != nil {
		// Внешние уведомления вне критической секции и вне запроса
		go h.push.NotifyUser(context.WithoutCancel(ctx), userID, api.NotificationPayload{
			Title: "records updated",
			Data: map[string]string{
				"updated": strconv.Itoa(updated),
			},
		})
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// publishAccepted превращает принятые мутации в события для подписчиков
func (h *KVHandler) publishAccepted(userID string, resp *api.MutateResponse) {
	if len(resp.Accepted) == 0 {
		return
	}

	batch := api.EventBatch{Events: make([]api.ChangeEvent, 0, len(resp.Accepted))}
	for _, record := range resp.Accepted {
		batch.Events = append(batch.Events, api.ChangeEvent{
			Key:       record.Key,
			Value:     record.Value,
			Version:   record.Version,
			SessionID: models.SessionIDFromKey(record.Key),
			Tombstone: record.Value == nil,
		})
	}
	h.events.Publish(userID, batch)
}

// pushableMutations считает принятые записи, достойные уведомления:
// живые task sibling'и без tombstone'ов, index- и key-записей
func pushableMutations(accepted []api.Record) int {
	count := 0
	for _, record := range accepted {
		if record.Value != nil && models.TaskIDFromKey(record.Key) != "" {
			count++
		}
	}
	return count
}

func (h *KVHandler) userLock(userID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	lock, ok := h.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		h.userLocks[userID] = lock
	}
	return lock
}

func toAPIRecord(record *models.Record) api.Record {
	return api.Record{
		Key:     record.Key,
		Value:   record.Value,
		Version: record.Version,
	}
}

// sendJSON отправляет JSON ответ
func (h *KVHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h *KVHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{Error: message}, statusCode)
}
