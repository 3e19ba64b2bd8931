package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/internal/server/storage"
	"github.com/iudanet/syncvault/pkg/api"
)

// PushStorage определяет интерфейс для работы с push endpoint'ами
type PushStorage interface {
	SaveEndpoint(ctx context.Context, endpoint *models.PushEndpoint) error
	GetUserEndpoints(ctx context.Context, userID string) ([]*models.PushEndpoint, error)
	DeleteEndpoint(ctx context.Context, userID, endpointID string) error
}

// PushHandler обрабатывает регистрацию push endpoint'ов
type PushHandler struct {
	logger  *slog.Logger
	storage PushStorage
}

// NewPushHandler создает новый handler для push endpoint'ов
func NewPushHandler(logger *slog.Logger, storage PushStorage) *PushHandler {
	return &PushHandler{
		logger:  logger,
		storage: storage,
	}
}

// Register обрабатывает POST /api/v1/push/endpoints
// Регистрирует URL для доставки уведомлений
func (h *PushHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode endpoint request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		h.sendError(w, "url must be a valid http(s) URL", http.StatusBadRequest)
		return
	}

	endpoint := &models.PushEndpoint{
		ID:        uuid.New().String(),
		UserID:    userID,
		URL:       req.URL,
		Token:     req.Token,
		CreatedAt: time.Now(),
	}

	if err := h.storage.SaveEndpoint(ctx, endpoint); err != nil {
		h.logger.ErrorContext(ctx, "failed to save endpoint", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "push endpoint registered",
		slog.String("user_id", userID),
		slog.String("endpoint_id", endpoint.ID))

	h.sendJSON(w, api.RegisterEndpointResponse{EndpointID: endpoint.ID}, http.StatusCreated)
}

// Delete обрабатывает DELETE /api/v1/push/endpoints/{id}
func (h *PushHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	endpointID := r.PathValue("id")
	if endpointID == "" {
		h.sendError(w, "endpoint id is required", http.StatusBadRequest)
		return
	}

	if err := h.storage.DeleteEndpoint(ctx, userID, endpointID); err != nil {
		if errors.Is(err, storage.ErrEndpointNotFound) {
			h.sendError(w, "endpoint not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to delete endpoint", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (h *PushHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{Error: message}, statusCode)
}
