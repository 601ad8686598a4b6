// upload.go — выдача подписанных URL для прямой загрузки в S3.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apierrors "github.com/atshelchin/snapshare.link/internal/api/errors"
	"github.com/atshelchin/snapshare.link/internal/identity"
	"github.com/atshelchin/snapshare.link/internal/quota"
	"github.com/atshelchin/snapshare.link/internal/service"
)

// uploadRequest — тело запроса на выдачу мандатов.
// Либо одиночный fileSizeBytes, либо пакет files — массив размеров
// в байтах; пакет имеет приоритет.
type uploadRequest struct {
	FileSizeBytes int64   `json:"fileSizeBytes"`
	Files         []int64 `json:"files"`
}

// uploadResponse — ответ с выданными мандатами.
type uploadResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// HandleCreateUploadGrant обрабатывает POST /api/create-presigned-upload-url.
// Проверяет квоту загрузившего и выдаёт подписанный URL на каждый файл.
// Пакетный запрос выполняется по принципу всё-или-ничего.
func (h *APIHandler) HandleCreateUploadGrant(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	sizes := req.Files
	if len(sizes) == 0 {
		sizes = []int64{req.FileSizeBytes}
	}

	uploader := identity.Hash(uploaderAddress(r))

	grants, decision, err := h.grants.Issue(r.Context(), uploader, sizes)
	switch {
	case errors.Is(err, service.ErrInvalidSize):
		apierrors.ValidationError(w, "fileSizeBytes должен быть положительным числом")
		return
	case errors.Is(err, service.ErrSizeExceeded):
		apierrors.ValidationError(w, "размер файла превышает допустимый потолок")
		return
	case err != nil:
		h.logger.Error("Выдача мандатов не удалась", slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	if decision != nil && !decision.Allowed {
		apierrors.RateLimited(w, denialMessage(decision), limitInfo(decision))
		return
	}

	// Одиночный запрос отвечает одним мандатом, пакетный — списком.
	if len(req.Files) == 0 && len(grants) == 1 {
		writeJSON(w, http.StatusOK, uploadResponse{Success: true, Data: grants[0]})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Data: grants})
}

// limitInfo переводит отказ квоты в тело ответа 429.
// Поле unit заполняется только для байтовых потолков.
func limitInfo(d *quota.Decision) apierrors.LimitInfo {
	info := apierrors.LimitInfo{
		Current: d.Current,
		Max:     d.Max,
		Window:  string(d.Window),
	}
	if d.Reason == quota.ReasonByteTotal {
		info.Unit = "bytes"
	}
	return info
}

// denialMessage формирует человекочитаемое описание отказа.
func denialMessage(d *quota.Decision) string {
	switch d.Reason {
	case quota.ReasonByteTotal:
		return fmt.Sprintf("превышен потолок объёма загрузок за окно %s", d.Window)
	default:
		return fmt.Sprintf("превышен потолок количества загрузок за окно %s", d.Window)
	}
}
