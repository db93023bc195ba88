// Пакет config — загрузка и валидация конфигурации admin-gateway
// из переменных окружения (префикс WA_) и опционального .env файла.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранения сессии.
const (
	SessionBackendCookie = "cookie"
	SessionBackendMemory = "memory"
)

// Config содержит все параметры конфигурации admin-gateway.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Backend API ---

	// Базовый URL backend API (без trailing slash)
	APIBaseURL string
	// Таймаут одной попытки запроса к backend
	APITimeout time.Duration
	// Количество повторов после первой неудачной попытки
	APIRetryCount int
	// Разрешить повторы для неидемпотентных методов (POST, PATCH)
	APIRetryUnsafe bool
	// Путь health endpoint backend для topologymetrics
	BackendHealthPath string

	// --- Сессия ---

	// Секрет для AES-256-GCM шифрования cookie (пустой — случайный ключ)
	SessionSecret string
	// Бэкенд хранения сессии: cookie, memory
	SessionBackend string
	// Время жизни сессии
	SessionMaxAge time.Duration
	// Максимальное количество серверных сессий (memory backend)
	SessionCapacity int
	// Secure flag для cookie
	CookieSecure bool

	// --- HTTP ---

	// Разрешённые CORS origins
	CORSOrigins []string
	// Лимит попыток входа в минуту на один IP
	LoginRatePerMinute int
	// Адреса и подсети ingress, которым доверяется X-Forwarded-For
	TrustedProxies []string

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Если в рабочем каталоге есть .env, переменные из него подгружаются
// без перезаписи уже заданных в окружении.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// WA_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("WA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("WA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("WA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// WA_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("WA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("WA_LOG_LEVEL: %w", err)
	}

	// WA_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("WA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("WA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Backend API ---

	// WA_API_BASE_URL — обязательный
	cfg.APIBaseURL, err = getEnvRequired("WA_API_BASE_URL")
	if err != nil {
		return nil, err
	}
	if err := validation.Validate(cfg.APIBaseURL, is.URL); err != nil {
		return nil, fmt.Errorf("WA_API_BASE_URL: некорректный URL %q: %w", cfg.APIBaseURL, err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// WA_API_TIMEOUT — таймаут одной попытки (по умолчанию 10s)
	cfg.APITimeout, err = getEnvDuration("WA_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WA_API_TIMEOUT: %w", err)
	}

	// WA_API_RETRY_COUNT — число повторов (по умолчанию 3)
	cfg.APIRetryCount, err = getEnvInt("WA_API_RETRY_COUNT", 3)
	if err != nil {
		return nil, fmt.Errorf("WA_API_RETRY_COUNT: %w", err)
	}
	if cfg.APIRetryCount < 0 || cfg.APIRetryCount > 10 {
		return nil, fmt.Errorf("WA_API_RETRY_COUNT: значение %d вне допустимого диапазона 0-10", cfg.APIRetryCount)
	}

	// WA_API_RETRY_UNSAFE — повторять POST/PATCH (по умолчанию false)
	cfg.APIRetryUnsafe, err = getEnvBool("WA_API_RETRY_UNSAFE", false)
	if err != nil {
		return nil, fmt.Errorf("WA_API_RETRY_UNSAFE: %w", err)
	}

	// WA_BACKEND_HEALTH_PATH — путь health endpoint backend
	cfg.BackendHealthPath = getEnvDefault("WA_BACKEND_HEALTH_PATH", "/actuator/health")

	// --- Сессия ---

	cfg.SessionSecret = getEnvDefault("WA_SESSION_SECRET", "")

	cfg.SessionBackend = getEnvDefault("WA_SESSION_BACKEND", SessionBackendCookie)
	if err := validation.Validate(cfg.SessionBackend,
		validation.In(SessionBackendCookie, SessionBackendMemory),
	); err != nil {
		return nil, fmt.Errorf("WA_SESSION_BACKEND: недопустимое значение %q, допустимые: cookie, memory", cfg.SessionBackend)
	}

	// WA_SESSION_MAX_AGE — время жизни сессии (по умолчанию 24h)
	cfg.SessionMaxAge, err = getEnvDuration("WA_SESSION_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("WA_SESSION_MAX_AGE: %w", err)
	}

	// WA_SESSION_CAPACITY — ёмкость таблицы серверных сессий (по умолчанию 10000)
	cfg.SessionCapacity, err = getEnvInt("WA_SESSION_CAPACITY", 10000)
	if err != nil {
		return nil, fmt.Errorf("WA_SESSION_CAPACITY: %w", err)
	}
	if cfg.SessionCapacity < 1 {
		return nil, fmt.Errorf("WA_SESSION_CAPACITY: значение %d должно быть положительным", cfg.SessionCapacity)
	}

	cfg.CookieSecure, err = getEnvBool("WA_COOKIE_SECURE", false)
	if err != nil {
		return nil, fmt.Errorf("WA_COOKIE_SECURE: %w", err)
	}

	// --- HTTP ---

	cfg.CORSOrigins = parseCSV(getEnvDefault("WA_CORS_ORIGINS", "http://localhost:5173"))

	// WA_LOGIN_RATE_PER_MINUTE — лимит попыток входа (по умолчанию 10)
	cfg.LoginRatePerMinute, err = getEnvInt("WA_LOGIN_RATE_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("WA_LOGIN_RATE_PER_MINUTE: %w", err)
	}
	if cfg.LoginRatePerMinute < 1 {
		return nil, fmt.Errorf("WA_LOGIN_RATE_PER_MINUTE: значение %d должно быть положительным", cfg.LoginRatePerMinute)
	}

	// WA_TRUSTED_PROXIES — IP/CIDR ingress через запятую (по умолчанию пусто:
	// IP клиента — адрес соединения)
	cfg.TrustedProxies = parseCSV(getEnvDefault("WA_TRUSTED_PROXIES", ""))
	for _, proxy := range cfg.TrustedProxies {
		if err := validateProxy(proxy); err != nil {
			return nil, fmt.Errorf("WA_TRUSTED_PROXIES: %w", err)
		}
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("WA_DEPHEALTH_GROUP", "wonbawon")

	cfg.DephealthCheckInterval, err = getEnvDuration("WA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("WA_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("WA_SHUTDOWN_TIMEOUT: %w", err)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// validateProxy проверяет элемент WA_TRUSTED_PROXIES: IP или CIDR.
func validateProxy(s string) error {
	if strings.Contains(s, "/") {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("некорректная подсеть %q", s)
		}
		return nil
	}
	if _, err := netip.ParseAddr(s); err != nil {
		return fmt.Errorf("некорректный IP %q", s)
	}
	return nil
}
