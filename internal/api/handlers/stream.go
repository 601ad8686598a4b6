// stream.go — SSE endpoint live-потока канальной ленты.
// Каждый SSE-клиент обслуживается отдельной горутиной: снапшот при
// подключении, затем периодический опрос реестра на новые записи.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/service"
)

// sseClientsGauge — количество открытых SSE-подключений.
var sseClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "snapshare_sse_clients",
	Help: "Количество открытых SSE-подключений live-потока.",
})

// Типы SSE-событий live-потока.
const (
	streamEventInitial = "initial"
	streamEventUpdate  = "update"
	streamEventError   = "error"
)

// streamEvent — одно событие live-потока.
type streamEvent struct {
	Type  string              `json:"type"`
	Data  []*model.FileRecord `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
}

// HandleStreamFiles обрабатывает GET /api/stream-files-by-channel — SSE endpoint.
// Сразу после подключения отправляет снапшот канала (type: initial), затем
// каждые pollInterval — записи новее последнего отданного created_at
// (type: update). Формат: data: {json}\n\n.
// Graceful disconnect при закрытии клиентом соединения (context cancel).
func (h *APIHandler) HandleStreamFiles(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		http.Error(w, "channel_id is required", http.StatusBadRequest)
		return
	}

	// Настраиваем заголовки SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Отключаем буферизацию Nginx

	// Используем http.ResponseController для корректной работы Flush()
	// через обёрнутый ResponseWriter (logging middleware и др.).
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	sseClientsGauge.Inc()
	defer sseClientsGauge.Dec()

	h.logger.Debug("SSE клиент подключён",
		slog.String("channel_id", channelID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Снапшот при подключении. Ошибка здесь терминальна: клиент получает
	// событие error и соединение закрывается.
	initial, err := h.feed.Snapshot(ctx, channelID)
	if err != nil {
		h.logger.Error("Снапшот для SSE не удался",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		h.sendStreamEvent(w, rc, streamEvent{Type: streamEventError, Error: "снапшот канала не удался"})
		return
	}
	h.sendStreamEvent(w, rc, streamEvent{Type: streamEventInitial, Data: initial})

	// Watermark — максимальный отданный created_at; при пустом снапшоте
	// отсчёт идёт от момента подключения.
	watermark := service.Watermark(initial, time.Now().UnixMilli())

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Клиент отключился
			h.logger.Debug("SSE клиент отключён", slog.String("channel_id", channelID))
			return
		case <-ticker.C:
			// Ошибка одного тика не рвёт поток: следующий тик повторит опрос.
			updates, err := h.feed.Updates(ctx, channelID, watermark)
			if err != nil {
				h.logger.Warn("Опрос новых записей для SSE не удался",
					slog.String("channel_id", channelID),
					slog.String("error", err.Error()))
				continue
			}
			if len(updates) == 0 {
				continue
			}
			watermark = service.Watermark(updates, watermark)
			h.sendStreamEvent(w, rc, streamEvent{Type: streamEventUpdate, Data: updates})
		}
	}
}

// sendStreamEvent отправляет одно SSE-событие и флашит буфер.
func (h *APIHandler) sendStreamEvent(w http.ResponseWriter, rc *http.ResponseController, event streamEvent) {
	if event.Data == nil && event.Error == "" {
		event.Data = []*model.FileRecord{}
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Ошибка сериализации SSE-события", slog.String("error", err.Error()))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	_ = rc.Flush()
}
