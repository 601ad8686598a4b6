// grant.go — сервис выдачи мандатов на загрузку.
// Проверяет потолок размера, проводит запрос через квоты и выдаёт
// presigned PUT URL с фиксацией content-length.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/quota"
	"github.com/atshelchin/snapshare.link/internal/storage"
)

// Ошибки сервисного слоя.
var (
	// ErrSizeExceeded — запрошенный размер превышает потолок.
	ErrSizeExceeded = errors.New("размер файла превышает потолок")
	// ErrInvalidSize — запрошенный размер не положителен.
	ErrInvalidSize = errors.New("размер файла должен быть > 0")
)

// Prometheus-метрики выдачи мандатов.
var (
	grantsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshare_grants_issued_total",
		Help: "Количество выданных мандатов на загрузку.",
	})
	grantsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshare_grants_rejected_total",
		Help: "Количество отклонённых запросов мандата.",
	}, []string{"reason"})
)

// GrantService — выдача мандатов на загрузку в объектное хранилище.
type GrantService struct {
	store       storage.ObjectStorage
	ledger      quota.Ledger
	maxFileSize int64
	grantTTL    time.Duration
	logger      *slog.Logger
	// now подменяется в тестах (префикс ключа зависит от времени)
	now func() time.Time
}

// NewGrantService создаёт сервис выдачи мандатов.
func NewGrantService(
	store storage.ObjectStorage,
	ledger quota.Ledger,
	maxFileSize int64,
	grantTTL time.Duration,
	logger *slog.Logger,
) *GrantService {
	return &GrantService{
		store:       store,
		ledger:      ledger,
		maxFileSize: maxFileSize,
		grantTTL:    grantTTL,
		logger:      logger.With(slog.String("component", "grant_service")),
		now:         time.Now,
	}
}

// Issue выдаёт мандаты для пакета заявленных размеров.
// Порядок проверок:
//  1. валидация всех размеров против потолка — пакет целиком либо
//     проходит, либо отклоняется, без частичной выдачи;
//  2. одна агрегатная резервация квоты (len(sizes) файлов, сумма байт) —
//     пакет не обходит по-запросный учёт;
//  3. выдача presigned URL по одному на размер.
//
// При отказе квоты возвращается (nil, decision, nil) — это не ошибка,
// а штатный отказ с деталями для ответа 429.
func (s *GrantService) Issue(ctx context.Context, identity string, sizes []int64) ([]*model.UploadGrant, *quota.Decision, error) {
	if len(sizes) == 0 {
		return nil, nil, fmt.Errorf("%w: пустой пакет", ErrInvalidSize)
	}

	var totalBytes int64
	for _, size := range sizes {
		if size <= 0 {
			grantsRejectedTotal.WithLabelValues("invalid_size").Inc()
			return nil, nil, ErrInvalidSize
		}
		if size > s.maxFileSize {
			grantsRejectedTotal.WithLabelValues("size_exceeded").Inc()
			return nil, nil, fmt.Errorf("%w: запрошено %d байт, потолок %d", ErrSizeExceeded, size, s.maxFileSize)
		}
		totalBytes += size
	}

	decision, err := s.ledger.CheckAndReserve(ctx, identity, int64(len(sizes)), totalBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("проверка квоты: %w", err)
	}
	if !decision.Allowed {
		grantsRejectedTotal.WithLabelValues("quota").Inc()
		s.logger.Warn("Запрос мандата отклонён по квоте",
			slog.String("identity", identity),
			slog.String("reason", string(decision.Reason)),
			slog.String("window", string(decision.Window)),
			slog.Int64("current", decision.Current),
			slog.Int64("max", decision.Max),
		)
		return nil, decision, nil
	}

	grants := make([]*model.UploadGrant, 0, len(sizes))
	for _, size := range sizes {
		key := s.newFileKey()

		url, err := s.store.PresignPut(ctx, key, size, s.grantTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("хранилище недоступно: %w", err)
		}

		grants = append(grants, &model.UploadGrant{
			URL:           url,
			Method:        "PUT",
			FileKey:       key,
			FileSizeBytes: size,
			MaxSizeBytes:  s.maxFileSize,
			ExpiresIn:     int64(s.grantTTL.Seconds()),
		})
		grantsIssuedTotal.Inc()
	}

	s.logger.Info("Мандаты выданы",
		slog.String("identity", identity),
		slog.Int("count", len(grants)),
		slog.Int64("total_bytes", totalBytes),
	)

	return grants, decision, nil
}

// newFileKey порождает ключ объекта: часовой ISO-префикс + случайный UUID.
// Префикс группирует объекты по часу загрузки, UUID исключает коллизии.
func (s *GrantService) newFileKey() string {
	return s.now().UTC().Format("2006-01-02T15") + "/" + uuid.NewString()
}
