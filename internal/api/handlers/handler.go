// handler.go — основной обработчик API snapshare.
// Объединяет health и бизнес-обработчики, делегируя запросы
// в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/atshelchin/snapshare.link/internal/service"
)

// APIHandler — основной обработчик API snapshare.
type APIHandler struct {
	grants       *service.GrantService
	register     *service.RegisterService
	feed         *service.FeedService
	health       *HealthHandler
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	grants *service.GrantService,
	register *service.RegisterService,
	feed *service.FeedService,
	health *HealthHandler,
	pollInterval time.Duration,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		grants:       grants,
		register:     register,
		feed:         feed,
		health:       health,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// uploaderAddress извлекает сетевой адрес клиента.
// Порядок источников: CF-Connecting-IP (CDN), первый адрес
// X-Forwarded-For (обратный прокси), host из RemoteAddr.
func uploaderAddress(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
