// Package push доставляет уведомления на зарегистрированные
// пользователем HTTP endpoint'ы. Доставка — наилучшая попытка:
// недоступный endpoint не блокирует и не отменяет остальные.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/internal/server/metrics"
	"github.com/iudanet/syncvault/pkg/api"
)

const defaultDeliveryTimeout = 5 * time.Second

// Fanout рассылает уведомления по endpoint'ам параллельно,
// с отдельным таймаутом на каждую доставку
type Fanout struct {
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewFanout(logger *slog.Logger, m *metrics.Metrics) *Fanout {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Fanout{
		client:  &http.Client{Timeout: defaultDeliveryTimeout},
		logger:  logger,
		metrics: m,
		timeout: defaultDeliveryTimeout,
	}
}

// Notify доставляет payload на каждый endpoint и возвращает число
// успешных доставок. Ошибки отдельных endpoint'ов логируются,
// наружу не выходят.
func (f *Fanout) Notify(
	ctx context.Context,
	endpoints []*models.PushEndpoint,
	payload api.NotificationPayload,
) int {
	if len(endpoints) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	results := make(chan bool, len(endpoints))

	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(endpoint *models.PushEndpoint) {
			defer wg.Done()

			err := f.deliver(ctx, endpoint, payload)
			if err != nil {
				f.logger.Warn("push delivery failed",
					"endpoint_id", endpoint.ID,
					"url", endpoint.URL,
					"error", err,
				)
				f.metrics.PushDeliveries.WithLabelValues("failed").Inc()
			} else {
				f.metrics.PushDeliveries.WithLabelValues("delivered").Inc()
			}
			results <- err == nil
		}(endpoint)
	}

	wg.Wait()
	close(results)

	delivered := 0
	for ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

// deliver выполняет один POST с per-endpoint таймаутом
func (f *Fanout) deliver(
	ctx context.Context,
	endpoint *models.PushEndpoint,
	payload api.NotificationPayload,
) error {
	body, err := json.Marshal(api.PushDelivery{
		Token:   endpoint.Token,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
