// cache.go — LRU-кэш снапшотов каналов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable. Короткий TTL сглаживает
// нагрузку на реестр от повторных запросов снапшота одного канала;
// регистрация инвалидирует затронутый канал явно.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atshelchin/snapshare.link/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshare_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш снапшотов каналов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshare_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша снапшотов каналов.",
	})
)

// CacheService — LRU-кэш снапшотов каналов.
// Каждый экземпляр сервера имеет собственный in-memory кэш (per-instance).
type CacheService struct {
	cache *expirable.LRU[string, []*model.FileRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, []*model.FileRecord](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает снапшот канала из кэша.
// Возвращает (снапшот, true) при hit или (nil, false) при miss.
func (c *CacheService) Get(channelID string) ([]*model.FileRecord, bool) {
	val, ok := c.cache.Get(channelID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет снапшот канала в кэше.
func (c *CacheService) Set(channelID string, records []*model.FileRecord) {
	c.cache.Add(channelID, records)
}

// Invalidate удаляет снапшот канала (новая регистрация делает его устаревшим).
func (c *CacheService) Invalidate(channelID string) {
	c.cache.Remove(channelID)
}
