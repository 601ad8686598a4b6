// register.go — сервис регистрации завершённых загрузок.
// HEAD-проба хранилища подтверждает существование объекта и даёт
// авторитетные размер и тип; запись попадает в append-only реестр.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/identity"
	"github.com/atshelchin/snapshare.link/internal/repository"
	"github.com/atshelchin/snapshare.link/internal/storage"
)

// Ошибки регистрации.
var (
	// ErrObjectNotFound — объект отсутствует в хранилище или имеет
	// нулевой размер (загрузка не была завершена).
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
	// ErrDuplicateKey — file_key уже зарегистрирован.
	ErrDuplicateKey = errors.New("file_key уже зарегистрирован")
)

// Prometheus-метрики регистрации.
var filesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "snapshare_files_registered_total",
	Help: "Количество зарегистрированных в реестре файлов.",
})

// RegisterService — регистрация завершённых загрузок в реестре.
type RegisterService struct {
	store    storage.ObjectStorage
	fileRepo repository.FileRepository
	cache    *CacheService
	logger   *slog.Logger
	// now подменяется в тестах
	now func() time.Time
}

// NewRegisterService создаёт сервис регистрации.
// cache может быть nil — тогда инвалидация снапшотов не выполняется.
func NewRegisterService(
	store storage.ObjectStorage,
	fileRepo repository.FileRepository,
	cache *CacheService,
	logger *slog.Logger,
) *RegisterService {
	return &RegisterService{
		store:    store,
		fileRepo: fileRepo,
		cache:    cache,
		logger:   logger.With(slog.String("component", "register_service")),
		now:      time.Now,
	}
}

// Register регистрирует завершённую загрузку.
// Размер и тип берутся из HEAD-пробы хранилища, не от клиента.
// Нулевой размер или отсутствие объекта — ErrObjectNotFound: ключ,
// под который загрузка фактически не состоялась, не регистрируется.
// created_at — время регистрации (не загрузки: клиент может отложить
// вызов регистрации после успешной загрузки).
// Повторная регистрация того же file_key — ErrDuplicateKey:
// уникальное ограничение реестра, дедупликации нет.
func (s *RegisterService) Register(ctx context.Context, channelID, fileKey, fileName, uploaderAddress string) (*model.FileRecord, error) {
	uploaderHash := identity.Hash(uploaderAddress)

	info, err := s.store.Probe(ctx, fileKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectMissing) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, fileKey)
		}
		return nil, fmt.Errorf("хранилище недоступно: %w", err)
	}
	if info.Size == 0 {
		return nil, fmt.Errorf("%w: объект %s имеет нулевой размер", ErrObjectNotFound, fileKey)
	}

	record := &model.FileRecord{
		ChannelID:    channelID,
		FileKey:      fileKey,
		FileName:     fileName,
		FileType:     info.ContentType,
		FileSize:     info.Size,
		UploaderHash: uploaderHash,
		CreatedAt:    s.now().UnixMilli(),
	}

	if err := s.fileRepo.Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, fileKey)
		}
		return nil, fmt.Errorf("реестр недоступен: %w", err)
	}

	// Свежая запись делает кэшированный снапшот канала устаревшим
	if s.cache != nil {
		s.cache.Invalidate(channelID)
	}

	filesRegisteredTotal.Inc()
	s.logger.Info("Файл зарегистрирован",
		slog.String("channel_id", channelID),
		slog.String("file_key", fileKey),
		slog.Int64("file_size", info.Size),
		slog.String("file_type", info.ContentType),
		slog.String("uploader_hash", uploaderHash),
	)

	return record, nil
}
