// Точка входа snapshare — сервиса анонимного обмена файлами.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/atshelchin/snapshare.link/internal/api/handlers"
	"github.com/atshelchin/snapshare.link/internal/api/middleware"
	"github.com/atshelchin/snapshare.link/internal/config"
	"github.com/atshelchin/snapshare.link/internal/database"
	"github.com/atshelchin/snapshare.link/internal/quota"
	"github.com/atshelchin/snapshare.link/internal/repository"
	"github.com/atshelchin/snapshare.link/internal/server"
	"github.com/atshelchin/snapshare.link/internal/service"
	"github.com/atshelchin/snapshare.link/internal/storage"
)

func main() {
	// .env для локальной разработки; в кластере переменные приходят из окружения
	_ = godotenv.Load()

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("snapshare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("quota_backend", cfg.QuotaBackend),
	)

	ctx := context.Background()

	// 3. Миграции схемы PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграции БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Объектное хранилище (S3-совместимое)
	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации объектного хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Репозиторий реестра файлов
	fileRepo := repository.NewFileRepository(pool)

	// 7. Бэкенд квот: buckets (Redis) или scan (реестр файлов)
	limits := quota.Limits{
		HourFiles: cfg.QuotaHourFiles,
		DayFiles:  cfg.QuotaDayFiles,
		HourBytes: cfg.QuotaHourBytes,
		DayBytes:  cfg.QuotaDayBytes,
	}

	var ledger quota.Ledger
	var redisChecker handlers.ReadinessChecker
	if cfg.QuotaBackend == config.QuotaBackendBuckets {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Ошибка подключения к Redis",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		ledger = quota.NewBucketLedger(rdb, limits, logger)
		redisChecker = quota.NewReadinessChecker(rdb)
	} else {
		ledger = quota.NewScanLedger(fileRepo, limits, logger)
	}

	// 8. Кэш снапшотов каналов
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)

	// 9. Сервисы
	grantSvc := service.NewGrantService(store, ledger, cfg.MaxFileSize, cfg.GrantTTL, logger)
	registerSvc := service.NewRegisterService(store, fileRepo, cache, logger)
	feedSvc := service.NewFeedService(fileRepo, cache, cfg.FeedSnapshotLimit, logger)

	// 10. Обработчики
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), redisChecker)
	apiHandler := handlers.NewAPIHandler(grantSvc, registerSvc, feedSvc, healthHandler, cfg.FeedPollInterval, logger)

	// 11. HTTP-сервер: CORS -> метрики -> логирование запросов
	srv := server.New(cfg, logger, apiHandler,
		middleware.CORS(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 12. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("snapshare остановлен")
}
