// Пакет errors — конструкторы стандартных ошибок API snapshare.
// Единый конверт: {"success": false, "error": "..."}; отказ по квоте
// дополнительно несёт блок limit. Все HTTP-ответы с ошибками должны
// использовать конструкторы этого пакета.
package errors //nolint:revive // конфликт имени со stdlib допущен сознательно

import (
	"encoding/json"
	"net/http"
)

// LimitInfo — детали отказа по квоте для ответа 429.
type LimitInfo struct {
	// Current — текущее значение счётчика
	Current int64 `json:"current"`
	// Max — потолок
	Max int64 `json:"max"`
	// Window — окно квоты: hour или day
	Window string `json:"window"`
	// Unit — единица счётчика ("bytes" для байтовых потолков,
	// отсутствует для количества файлов)
	Unit string `json:"unit,omitempty"`
}

// errorBody — конверт ответа с ошибкой.
type errorBody struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Limit   *LimitInfo `json:"limit,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном конверте.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Error: message})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// RateLimited — 429 превышена квота, с блоком limit.
func RateLimited(w http.ResponseWriter, message string, limit LimitInfo) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Error:   message,
		Limit:   &limit,
	})
}

// InternalError — 500 отказ коллаборатора или внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
