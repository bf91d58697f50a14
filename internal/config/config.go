// Пакет config — загрузка и валидация конфигурации Visaflow
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

// Режимы очереди дескрипторов.
const (
	QueueModeKafka  = "kafka"
	QueueModeMemory = "memory"
)

// Config содержит все параметры конфигурации Visaflow.
type Config struct {
	// Порт HTTP-сервера
	Port int

	// --- PostgreSQL ---
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// --- Хранилища файлов ---
	// Корневая директория временного хранилища
	TempDir string
	// Корневая директория постоянного хранилища
	DurableDir string
	// Максимальный размер принимаемого файла в байтах
	MaxFileSize int64

	// --- Очередь дескрипторов ---
	// Режим очереди: kafka или memory
	QueueMode string
	// Адреса брокеров Kafka (через запятую, только для kafka)
	KafkaBrokers []string
	// Топик очереди загрузок
	KafkaTopic string
	// Consumer group воркеров ingest
	KafkaGroupID string
	// Ёмкость буфера in-memory очереди (только для memory)
	MemoryQueueSize int

	// --- Воркеры ingest ---
	// Количество воркеров, разбирающих очередь
	Workers int

	// --- Janitor временного хранилища ---
	// Интервал запуска уборки
	JanitorInterval time.Duration
	// Возраст временного файла, после которого он удаляется
	TempTTL time.Duration

	// --- Realtime (SSE) ---
	// Интервал heartbeat-комментариев SSE
	SSEHeartbeat time.Duration
	// Ёмкость буфера одного подписчика (при переполнении события отбрасываются)
	SubscriberBuffer int

	// --- Кэш справочников ---
	// Максимальное количество записей в LRU-кэше категорий и заявок
	CacheSize int
	// TTL записи кэша
	CacheTTL time.Duration

	// --- JWT / JWKS ---
	// URL JWKS endpoint внешнего издателя токенов
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Логирование ---
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// VF_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("VF_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("VF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("VF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// --- PostgreSQL ---
	cfg.DBHost, err = getEnvRequired("VF_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("VF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("VF_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("VF_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("VF_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("VF_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("VF_DB_SSL_MODE", "disable")

	// --- Хранилища ---
	cfg.TempDir, err = getEnvRequired("VF_TEMP_DIR")
	if err != nil {
		return nil, err
	}
	cfg.DurableDir, err = getEnvRequired("VF_DURABLE_DIR")
	if err != nil {
		return nil, err
	}

	// VF_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 4 MiB)
	cfg.MaxFileSize, err = getEnvInt64("VF_MAX_FILE_SIZE", 4194304)
	if err != nil {
		return nil, fmt.Errorf("VF_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("VF_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// --- Очередь ---
	cfg.QueueMode = getEnvDefault("VF_QUEUE_MODE", QueueModeMemory)
	if cfg.QueueMode != QueueModeKafka && cfg.QueueMode != QueueModeMemory {
		return nil, fmt.Errorf("VF_QUEUE_MODE: недопустимое значение %q, допустимые: kafka, memory", cfg.QueueMode)
	}

	if cfg.QueueMode == QueueModeKafka {
		brokers, brErr := getEnvRequired("VF_KAFKA_BROKERS")
		if brErr != nil {
			return nil, brErr
		}
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("VF_KAFKA_BROKERS: список брокеров пуст")
		}
	}
	cfg.KafkaTopic = getEnvDefault("VF_KAFKA_TOPIC", "file-uploads")
	cfg.KafkaGroupID = getEnvDefault("VF_KAFKA_GROUP_ID", "visaflow-ingest")

	cfg.MemoryQueueSize, err = getEnvInt("VF_MEMORY_QUEUE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("VF_MEMORY_QUEUE_SIZE: %w", err)
	}
	if cfg.MemoryQueueSize <= 0 {
		return nil, fmt.Errorf("VF_MEMORY_QUEUE_SIZE: значение должно быть положительным")
	}

	// VF_WORKERS — количество воркеров ingest (по умолчанию 4)
	cfg.Workers, err = getEnvInt("VF_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("VF_WORKERS: %w", err)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("VF_WORKERS: значение должно быть положительным")
	}

	// --- Janitor ---
	cfg.JanitorInterval, err = getEnvDuration("VF_JANITOR_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("VF_JANITOR_INTERVAL: %w", err)
	}
	cfg.TempTTL, err = getEnvDuration("VF_TEMP_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("VF_TEMP_TTL: %w", err)
	}

	// --- SSE ---
	cfg.SSEHeartbeat, err = getEnvDuration("VF_SSE_HEARTBEAT", 25*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VF_SSE_HEARTBEAT: %w", err)
	}
	cfg.SubscriberBuffer, err = getEnvInt("VF_SUBSCRIBER_BUFFER", 16)
	if err != nil {
		return nil, fmt.Errorf("VF_SUBSCRIBER_BUFFER: %w", err)
	}
	if cfg.SubscriberBuffer <= 0 {
		return nil, fmt.Errorf("VF_SUBSCRIBER_BUFFER: значение должно быть положительным")
	}

	// --- Кэш ---
	cfg.CacheSize, err = getEnvInt("VF_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("VF_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("VF_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VF_CACHE_TTL: %w", err)
	}

	// --- JWT / JWKS ---
	cfg.JWKSUrl, err = getEnvRequired("VF_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWKSCACert = getEnvDefault("VF_JWKS_CA_CERT", "")
	cfg.JWKSClientTimeout, err = getEnvDuration("VF_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VF_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("VF_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("VF_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("VF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VF_JWT_LEEWAY: %w", err)
	}

	// --- Логирование ---
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("VF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("VF_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("VF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("VF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// VF_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("VF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("VF_SHUTDOWN_TIMEOUT: %w", err)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
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
