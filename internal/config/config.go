// Пакет config — загрузка и валидация конфигурации snapshare
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Константы размеров.
const (
	mib = int64(1) << 20
	gib = int64(1) << 30
)

// Config содержит все параметры конфигурации snapshare.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера. 0 = без лимита: SSE-поток живёт
	// дольше любого разумного write timeout.
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration
	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// --- Объектное хранилище (S3-совместимое) ---

	// Endpoint S3 API (пустой — стандартный AWS endpoint региона)
	S3Endpoint string
	// Регион S3
	S3Region string
	// Имя bucket для загрузок
	S3Bucket string
	// Ключи доступа
	S3AccessKey string
	S3SecretKey string

	// --- Мандаты на загрузку ---

	// Потолок размера одного файла (по умолчанию 100 MiB)
	MaxFileSize int64
	// Срок действия presigned URL (по умолчанию 1h)
	GrantTTL time.Duration

	// --- Квоты ---

	// Бэкенд квот: "buckets" (Redis-счётчики) или "scan" (скан реестра)
	QuotaBackend string
	// Адрес Redis (обязателен для бэкенда buckets)
	RedisAddr string
	// Потолки: файлов в час/сутки, байт в час/сутки
	QuotaHourFiles int64
	QuotaDayFiles  int64
	QuotaHourBytes int64
	QuotaDayBytes  int64

	// --- Канальная лента ---

	// Интервал опроса реестра live-лентой (по умолчанию 2s)
	FeedPollInterval time.Duration
	// Размер снапшота канала (по умолчанию 10 записей)
	FeedSnapshotLimit int
	// Размер и TTL LRU-кэша снапшотов
	CacheSize int
	CacheTTL  time.Duration
}

// Допустимые значения бэкенда квот.
const (
	QuotaBackendBuckets = "buckets"
	QuotaBackendScan    = "scan"
)

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SNAP_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SNAP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SNAP_PORT: %w", err)
	}

	// SNAP_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("SNAP_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("SNAP_LOG_LEVEL: %w", err)
	}

	// SNAP_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SNAP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SNAP_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("SNAP_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SNAP_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("SNAP_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("SNAP_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SNAP_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SNAP_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("SNAP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SNAP_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("SNAP_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("SNAP_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SNAP_DB_PORT: %w", err)
	}
	cfg.DBUser, err = getEnvRequired("SNAP_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("SNAP_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBName = getEnvDefault("SNAP_DB_NAME", "snapshare")
	cfg.DBSSLMode = getEnvDefault("SNAP_DB_SSLMODE", "disable")

	// --- Объектное хранилище ---

	cfg.S3Endpoint = getEnvDefault("SNAP_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("SNAP_S3_REGION", "auto")
	cfg.S3Bucket, err = getEnvRequired("SNAP_S3_BUCKET")
	if err != nil {
		return nil, err
	}
	cfg.S3AccessKey, err = getEnvRequired("SNAP_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	cfg.S3SecretKey, err = getEnvRequired("SNAP_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// --- Мандаты ---

	// SNAP_MAX_FILE_SIZE — потолок размера файла в байтах (по умолчанию 100 MiB)
	cfg.MaxFileSize, err = getEnvInt64("SNAP_MAX_FILE_SIZE", 100*mib)
	if err != nil {
		return nil, fmt.Errorf("SNAP_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SNAP_MAX_FILE_SIZE: значение должно быть > 0")
	}
	cfg.GrantTTL, err = getEnvDuration("SNAP_GRANT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SNAP_GRANT_TTL: %w", err)
	}
	if cfg.GrantTTL < time.Second {
		return nil, fmt.Errorf("SNAP_GRANT_TTL: значение должно быть >= 1s")
	}

	// --- Квоты ---

	cfg.QuotaBackend = getEnvDefault("SNAP_QUOTA_BACKEND", QuotaBackendBuckets)
	if cfg.QuotaBackend != QuotaBackendBuckets && cfg.QuotaBackend != QuotaBackendScan {
		return nil, fmt.Errorf("SNAP_QUOTA_BACKEND: недопустимое значение %q, допустимые: %s, %s",
			cfg.QuotaBackend, QuotaBackendBuckets, QuotaBackendScan)
	}
	cfg.RedisAddr = getEnvDefault("SNAP_REDIS_ADDR", "localhost:6379")

	cfg.QuotaHourFiles, err = getEnvInt64("SNAP_QUOTA_HOUR_FILES", 100)
	if err != nil {
		return nil, fmt.Errorf("SNAP_QUOTA_HOUR_FILES: %w", err)
	}
	cfg.QuotaDayFiles, err = getEnvInt64("SNAP_QUOTA_DAY_FILES", 1000)
	if err != nil {
		return nil, fmt.Errorf("SNAP_QUOTA_DAY_FILES: %w", err)
	}
	cfg.QuotaHourBytes, err = getEnvInt64("SNAP_QUOTA_HOUR_BYTES", gib)
	if err != nil {
		return nil, fmt.Errorf("SNAP_QUOTA_HOUR_BYTES: %w", err)
	}
	cfg.QuotaDayBytes, err = getEnvInt64("SNAP_QUOTA_DAY_BYTES", 10*gib)
	if err != nil {
		return nil, fmt.Errorf("SNAP_QUOTA_DAY_BYTES: %w", err)
	}

	// --- Канальная лента ---

	cfg.FeedPollInterval, err = getEnvDuration("SNAP_FEED_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SNAP_FEED_POLL_INTERVAL: %w", err)
	}
	if cfg.FeedPollInterval < 100*time.Millisecond {
		return nil, fmt.Errorf("SNAP_FEED_POLL_INTERVAL: значение должно быть >= 100ms")
	}
	cfg.FeedSnapshotLimit, err = getEnvInt("SNAP_FEED_SNAPSHOT_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("SNAP_FEED_SNAPSHOT_LIMIT: %w", err)
	}
	if cfg.FeedSnapshotLimit < 1 {
		return nil, fmt.Errorf("SNAP_FEED_SNAPSHOT_LIMIT: значение должно быть >= 1")
	}
	cfg.CacheSize, err = getEnvInt("SNAP_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("SNAP_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("SNAP_CACHE_TTL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("SNAP_CACHE_TTL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64-значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
