// feed.go — сервис канальной ленты: снапшот последних записей канала
// и выборка записей новее watermark для live-потока.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
	"github.com/atshelchin/snapshare.link/internal/repository"
)

// FeedService — чтение канальной ленты поверх реестра файлов.
type FeedService struct {
	fileRepo      repository.FileRepository
	cache         *CacheService
	snapshotLimit int
	logger        *slog.Logger
}

// NewFeedService создаёт сервис канальной ленты.
// snapshotLimit — размер снапшота канала.
// cache может быть nil — тогда каждый снапшот идёт в реестр.
func NewFeedService(
	fileRepo repository.FileRepository,
	cache *CacheService,
	snapshotLimit int,
	logger *slog.Logger,
) *FeedService {
	return &FeedService{
		fileRepo:      fileRepo,
		cache:         cache,
		snapshotLimit: snapshotLimit,
		logger:        logger.With(slog.String("component", "feed_service")),
	}
}

// Snapshot возвращает последние записи канала, отсортированные по
// created_at по убыванию, не более snapshotLimit штук.
// Пустой channel_id — пустой снапшот без обращения к реестру и без ошибки.
func (s *FeedService) Snapshot(ctx context.Context, channelID string) ([]*model.FileRecord, error) {
	if channelID == "" {
		return []*model.FileRecord{}, nil
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(channelID); ok {
			return cached, nil
		}
	}

	records, err := s.fileRepo.ListRecent(ctx, channelID, s.snapshotLimit)
	if err != nil {
		return nil, fmt.Errorf("снапшот канала: %w", err)
	}
	if records == nil {
		records = []*model.FileRecord{}
	}

	if s.cache != nil {
		s.cache.Set(channelID, records)
	}
	return records, nil
}

// Updates возвращает записи канала с created_at строго больше watermark,
// по убыванию created_at. Кэш не используется: live-поток должен видеть
// свежие записи не позже одного интервала опроса.
func (s *FeedService) Updates(ctx context.Context, channelID string, watermark int64) ([]*model.FileRecord, error) {
	records, err := s.fileRepo.ListNewer(ctx, channelID, watermark)
	if err != nil {
		return nil, fmt.Errorf("обновления канала: %w", err)
	}
	return records, nil
}

// Watermark возвращает максимальный created_at среди записей
// или fallback, если записей нет.
func Watermark(records []*model.FileRecord, fallback int64) int64 {
	mark := fallback
	for _, rec := range records {
		if rec.CreatedAt > mark {
			mark = rec.CreatedAt
		}
	}
	return mark
}
