package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/syncvault/internal/server/metrics"
)

// MetricsMiddleware создает middleware для сбора HTTP метрик.
// Route label берется из r.Pattern, который ServeMux проставляет
// после маршрутизации, поэтому middleware должен оборачивать mux целиком.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				// Запрос не совпал ни с одним паттерном (404)
				route = "unmatched"
			}

			m.RequestsTotal.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
