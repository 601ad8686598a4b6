// Пакет quota — ограничение активности загрузивших по двум временным
// окнам (час и сутки), по количеству файлов и суммарному объёму байт.
// Два взаимозаменяемых бэкенда одного интерфейса Ledger:
//   - buckets — Redis-счётчики по календарным корзинам, O(1) на запрос;
//   - scan — агрегат по реестру файлов, честное скользящее окно.
package quota

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrLedgerUnavailable — бэкенд квот недоступен. Запрос обязан
// завершиться ошибкой: молчаливый пропуск означал бы безлимит.
var ErrLedgerUnavailable = errors.New("бэкенд квот недоступен")

// Window — временное окно квоты.
type Window string

// Окна квот.
const (
	WindowHour Window = "hour"
	WindowDay  Window = "day"
)

// Reason — вид превышенного потолка.
type Reason string

// Виды потолков.
const (
	ReasonFileCount Reason = "file-count"
	ReasonByteTotal Reason = "byte-total"
)

// Prometheus-метрики квот.
var quotaDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snapshare_quota_denials_total",
		Help: "Количество отклонённых по квоте запросов на загрузку.",
	},
	[]string{"reason", "window"},
)

// Limits — потолки квот на одного загрузившего.
type Limits struct {
	// HourFiles — файлов в час
	HourFiles int64
	// DayFiles — файлов в сутки
	DayFiles int64
	// HourBytes — байт в час
	HourBytes int64
	// DayBytes — байт в сутки
	DayBytes int64
}

// Decision — результат проверки квоты.
// При Allowed=false поля Reason/Window/Current/Max описывают
// первый нарушенный предикат.
type Decision struct {
	Allowed bool
	// Reason — вид превышенного потолка
	Reason Reason
	// Window — окно, в котором превышен потолок
	Window Window
	// Current — текущее значение счётчика (без запрошенного инкремента)
	Current int64
	// Max — потолок
	Max int64
}

// Ledger — учёт квот загрузивших.
// CheckAndReserve атомарно проверяет четыре предиката в фиксированном
// порядке (файлы/час, файлы/сутки, байты/час, байты/сутки) и, если ни
// один не нарушен, резервирует запрошенный объём. Конкурентные запросы
// одного identity не должны совместно проскочить потолок.
type Ledger interface {
	CheckAndReserve(ctx context.Context, identity string, files, bytes int64) (*Decision, error)
}

// deny формирует отказ и инкрементирует метрику.
func deny(reason Reason, window Window, current, max int64) *Decision {
	quotaDenialsTotal.WithLabelValues(string(reason), string(window)).Inc()
	return &Decision{
		Allowed: false,
		Reason:  reason,
		Window:  window,
		Current: current,
		Max:     max,
	}
}

// allow формирует разрешение.
func allow() *Decision {
	return &Decision{Allowed: true}
}
