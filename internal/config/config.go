// Пакет config — загрузка и валидация конфигурации сервиса
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/archivarius/internal/docstore"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды document store.
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории хранения файлов и архивов
	DataDir string
	// Путь к директории журнала процессов
	JournalDir string
	// Бэкенд document store: memory или postgres
	StoreBackend string
	// Параметры подключения PostgreSQL (только для postgres)
	Postgres docstore.PostgresConfig
	// Максимальный размер тела запроса загрузки в байтах
	MaxUploadSize int64
	// Размер LRU-кэша записей на путь чтения (0 — отключён)
	CacheSize int
	// TTL записей в LRU-кэше
	CacheTTL time.Duration
	// URL JWKS endpoint (пусто — аутентификация отключена)
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Пропускать проверку TLS-сертификатов JWKS endpoint
	TLSSkipVerify bool
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера и движка процессов.
	// Должен быть меньше K8s terminationGracePeriodSeconds.
	ShutdownTimeout time.Duration
}

// AuthEnabled — аутентификация включена, если задан JWKS endpoint.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// AR_PORT — порт HTTP-сервера (по умолчанию 8030)
	port, err := getEnvInt("AR_PORT", 8030)
	if err != nil {
		return nil, fmt.Errorf("AR_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("AR_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// AR_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("AR_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// AR_JOURNAL_DIR — обязательный
	cfg.JournalDir, err = getEnvRequired("AR_JOURNAL_DIR")
	if err != nil {
		return nil, err
	}

	// AR_STORE_BACKEND — бэкенд document store (по умолчанию memory)
	cfg.StoreBackend = getEnvDefault("AR_STORE_BACKEND", StoreBackendMemory)
	if cfg.StoreBackend != StoreBackendMemory && cfg.StoreBackend != StoreBackendPostgres {
		return nil, fmt.Errorf("AR_STORE_BACKEND: недопустимое значение %q, допустимые: memory, postgres", cfg.StoreBackend)
	}

	// Параметры PostgreSQL обязательны только для postgres-бэкенда
	if cfg.StoreBackend == StoreBackendPostgres {
		cfg.Postgres.Host, err = getEnvRequired("AR_DB_HOST")
		if err != nil {
			return nil, err
		}
		cfg.Postgres.Port, err = getEnvInt("AR_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("AR_DB_PORT: %w", err)
		}
		cfg.Postgres.User, err = getEnvRequired("AR_DB_USER")
		if err != nil {
			return nil, err
		}
		cfg.Postgres.Password, err = getEnvRequired("AR_DB_PASSWORD")
		if err != nil {
			return nil, err
		}
		cfg.Postgres.Database, err = getEnvRequired("AR_DB_NAME")
		if err != nil {
			return nil, err
		}
		cfg.Postgres.SSLMode = getEnvDefault("AR_DB_SSLMODE", "disable")
	}

	// AR_MAX_UPLOAD_SIZE — максимальный размер загрузки (по умолчанию 1 GB)
	maxUploadSize, err := getEnvInt64("AR_MAX_UPLOAD_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("AR_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUploadSize <= 0 {
		return nil, fmt.Errorf("AR_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUploadSize

	// AR_CACHE_SIZE — размер LRU-кэша записей (по умолчанию 1024, 0 — отключён)
	cfg.CacheSize, err = getEnvInt("AR_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("AR_CACHE_SIZE: %w", err)
	}

	// AR_CACHE_TTL — TTL кэша записей (по умолчанию 30s)
	cfg.CacheTTL, err = getEnvDuration("AR_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_CACHE_TTL: %w", err)
	}

	// AR_JWKS_URL — опционально; пусто — аутентификация отключена
	cfg.JWKSUrl = getEnvDefault("AR_JWKS_URL", "")

	// AR_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("AR_JWKS_CA_CERT", "")

	// AR_TLS_SKIP_VERIFY — пропуск проверки TLS-сертификатов (по умолчанию false)
	cfg.TLSSkipVerify = getEnvDefault("AR_TLS_SKIP_VERIFY", "false") == "true"

	// AR_JWT_LEEWAY — допуск времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("AR_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_JWT_LEEWAY: %w", err)
	}

	// AR_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AR_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AR_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AR_LOG_LEVEL: %w", err)
	}

	// AR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AR_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 5m:
	// загрузка больших пакетов файлов)
	cfg.HTTPReadTimeout, err = getEnvDuration("AR_HTTP_READ_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AR_HTTP_READ_TIMEOUT: %w", err)
	}

	// AR_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 5m:
	// скачивание больших архивов)
	cfg.HTTPWriteTimeout, err = getEnvDuration("AR_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AR_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// AR_HTTP_IDLE_TIMEOUT — таймаут keep-alive соединений (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("AR_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// AR_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AR_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
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

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
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
