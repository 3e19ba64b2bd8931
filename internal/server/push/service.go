package push

import (
	"context"
	"log/slog"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// EndpointSource выдает endpoint'ы пользователя для доставки
type EndpointSource interface {
	GetUserEndpoints(ctx context.Context, userID string) ([]*models.PushEndpoint, error)
}

// Service связывает хранилище endpoint'ов с fan-out доставкой
type Service struct {
	endpoints EndpointSource
	fanout    *Fanout
	logger    *slog.Logger
}

func NewService(endpoints EndpointSource, fanout *Fanout, logger *slog.Logger) *Service {
	return &Service{
		endpoints: endpoints,
		fanout:    fanout,
		logger:    logger,
	}
}

// NotifyUser доставляет payload на все endpoint'ы пользователя.
// Ошибки не возвращаются: уведомления — побочный канал, их потеря
// не влияет на корректность синхронизации.
func (s *Service) NotifyUser(ctx context.Context, userID string, payload api.NotificationPayload) {
	endpoints, err := s.endpoints.GetUserEndpoints(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load push endpoints",
			"user_id", userID,
			"error", err,
		)
		return
	}
	if len(endpoints) == 0 {
		return
	}

	delivered := s.fanout.Notify(ctx, endpoints, payload)
	s.logger.Debug("push notifications sent",
		"user_id", userID,
		"endpoints", len(endpoints),
		"delivered", delivered,
	)
}
