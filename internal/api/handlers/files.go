// files.go — регистрация файлов в реестре и выборка ленты канала.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/atshelchin/snapshare.link/internal/api/errors"
	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/service"
)

// addFileRequest — тело запроса на регистрацию загруженного файла.
type addFileRequest struct {
	ChannelID string `json:"channel_id"`
	FileKey   string `json:"file_key"`
	FileName  string `json:"file_name"`
}

// addFileResponse — ответ с зарегистрированными записями.
type addFileResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Files   []*model.FileRecord `json:"files"`
}

// queryFilesResponse — ответ на выборку ленты канала.
type queryFilesResponse struct {
	Success bool           `json:"success"`
	Data    queryFilesData `json:"data"`
}

type queryFilesData struct {
	ChannelID    string              `json:"channel_id"`
	ChannelFiles []*model.FileRecord `json:"channelFiles"`
}

// HandleAddFile обрабатывает POST /api/add-file.
// Регистрация подтверждает загрузку: размер и тип берутся из
// хранилища, а не со слов клиента.
func (h *APIHandler) HandleAddFile(w http.ResponseWriter, r *http.Request) {
	var req addFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}
	if req.ChannelID == "" || req.FileKey == "" || req.FileName == "" {
		apierrors.ValidationError(w, "channel_id, file_key и file_name обязательны")
		return
	}

	record, err := h.register.Register(r.Context(), req.ChannelID, req.FileKey, req.FileName, uploaderAddress(r))
	switch {
	case errors.Is(err, service.ErrObjectNotFound):
		apierrors.ValidationError(w, "объект не найден в хранилище")
		return
	case errors.Is(err, service.ErrDuplicateKey):
		apierrors.ValidationError(w, "file_key уже зарегистрирован")
		return
	case err != nil:
		h.logger.Error("Регистрация файла не удалась",
			slog.String("file_key", req.FileKey),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, addFileResponse{
		Success: true,
		Count:   1,
		Files:   []*model.FileRecord{record},
	})
}

// HandleQueryFiles обрабатывает GET /api/query-files-by-channel.
// Пустой channel_id не является ошибкой: ответ содержит пустую ленту.
func (h *APIHandler) HandleQueryFiles(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")

	records, err := h.feed.Snapshot(r.Context(), channelID)
	if err != nil {
		h.logger.Error("Выборка ленты канала не удалась",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, queryFilesResponse{
		Success: true,
		Data: queryFilesData{
			ChannelID:    channelID,
			ChannelFiles: records,
		},
	})
}
