// Пакет config собирает конфигурацию релея из окружения:
//  1. читает .env (godotenv; отсутствие файла — предупреждение, а не ошибка),
//  2. запрашивает в терминале обязательные значения, которых нет в окружении,
//  3. нормализует и валидирует остальное, подставляя дефолты с предупреждениями,
//  4. фиксирует результат в глобальном снимке, доступном через Env().
//
// Все переменные имеют префикс MTK_: учётные данные Telegram API, токен бота,
// пути к файлам сессий и bbolt-баз обеих сессий, адрес backend'а, политика
// повторов, адрес веб-формы и логирование.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig — «операционные» настройки запуска. Значения уже провалидированы в loadConfig.
type EnvConfig struct {
	APIID    int
	APIHash  string
	BotToken string
	TestDC   bool

	// Сессии и локальные базы (update state + peers) для пользователя и бота.
	PhoneSessionFile string
	BotSessionFile   string
	PhoneDBFile      string
	BotDBFile        string

	// Backend проверки задач.
	BackendURL        string
	BackendTimeoutSec int
	BackendRetries    int
	BackendRPS        int

	ThrottleRPS    int
	DedupWindowSec int
	LoginTTLMin    int
	DebugDumps     bool

	WebAddress string

	LogLevel string
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// Prompter запрашивает значение обязательной переменной name у оператора.
// secret=true означает ввод без эха. Nil-Prompter — обязательные значения только из окружения.
type Prompter func(name, message string, secret bool) (string, error)

// Config хранит конфигурацию среды и предупреждения загрузки.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

// Значения по умолчанию.
const (
	defaultPhoneSessionFile  = "data/phone.session"
	defaultBotSessionFile    = "data/bot.session"
	defaultPhoneDBFile       = "data/phone.bbolt"
	defaultBotDBFile         = "data/bot.bbolt"
	defaultBackendURL        = "http://127.0.0.1:8000"
	defaultBackendTimeoutSec = 10
	defaultBackendRetries    = 3
	defaultBackendRPS        = 5
	defaultThrottleRPS       = 10
	defaultDedupWindowSec    = 120
	defaultLoginTTLMin       = 15
	defaultDebugDumps        = false
	defaultWebAddress        = "unix:data/relay.sock"
	defaultLogLevel          = "info"
	// Файловое логирование (MTK_LOG_FILE без дефолта: пусто — файл не ведётся)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgMu       sync.Mutex
	cfgInstance *Config
)

// Load загружает глобальную конфигурацию. Повторный вызов запрещён.
func Load(envPath string, prompt Prompter) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	if cfgInstance != nil {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath, prompt)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	return nil
}

// loadConfig выполняет загрузку без установки глобального состояния (удобно для тестов).
func loadConfig(envPath string, prompt Prompter) (*Config, error) {
	var warnings []string

	if err := godotenv.Load(envPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
		appendWarningf(&warnings, "env file %q not found; using process environment", envPath)
	}

	apiIDRaw, err := requireValue("MTK_APP_ID", "Enter your API ID: ", false, prompt)
	if err != nil {
		return nil, err
	}
	apiID, err := strconv.Atoi(apiIDRaw)
	if err != nil || apiID <= 0 {
		return nil, fmt.Errorf("env MTK_APP_ID must be a positive integer, got %q", apiIDRaw)
	}

	apiHash, err := requireValue("MTK_APP_HASH", "Enter your API hash: ", true, prompt)
	if err != nil {
		return nil, err
	}

	botToken, err := requireValue("MTK_BOT_TOKEN", "Enter bot token: ", true, prompt)
	if err != nil {
		return nil, err
	}

	env := EnvConfig{
		APIID:    apiID,
		APIHash:  apiHash,
		BotToken: botToken,
		TestDC:   parseBoolDefault("MTK_TEST_DC", false, nil),

		PhoneSessionFile: sanitizeValue("MTK_PHONE_SESSION", defaultPhoneSessionFile, &warnings),
		BotSessionFile:   sanitizeValue("MTK_BOT_SESSION", defaultBotSessionFile, &warnings),
		PhoneDBFile:      sanitizeValue("MTK_PHONE_DB", defaultPhoneDBFile, &warnings),
		BotDBFile:        sanitizeValue("MTK_BOT_DB", defaultBotDBFile, &warnings),

		BackendURL:        sanitizeURL("MTK_DJ_URL", defaultBackendURL, &warnings),
		BackendTimeoutSec: parseIntDefault("MTK_BACKEND_TIMEOUT_SEC", defaultBackendTimeoutSec, greaterThanZero, &warnings),
		BackendRetries:    parseIntDefault("MTK_BACKEND_RETRIES", defaultBackendRetries, nonNegative, &warnings),
		BackendRPS:        parseIntDefault("MTK_BACKEND_RPS", defaultBackendRPS, greaterThanZero, &warnings),

		ThrottleRPS:    parseIntDefault("MTK_THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings),
		DedupWindowSec: parseIntDefault("MTK_DEDUP_WINDOW_SEC", defaultDedupWindowSec, nonNegative, &warnings),
		LoginTTLMin:    parseIntDefault("MTK_LOGIN_TTL_MIN", defaultLoginTTLMin, greaterThanZero, &warnings),
		DebugDumps:     parseBoolDefault("MTK_DEBUG_DUMPS", defaultDebugDumps, &warnings),

		WebAddress: sanitizeValue("MTK_WEB_ADDRESS", defaultWebAddress, &warnings),

		LogLevel:          sanitizeLogLevel("MTK_LOG_LEVEL", defaultLogLevel, &warnings),
		LogFile:           strings.TrimSpace(os.Getenv("MTK_LOG_FILE")),
		LogFileLevel:      sanitizeLogLevel("MTK_LOG_FILE_LEVEL", defaultLogFileLevel, &warnings),
		LogFileMaxSize:    parseIntDefault("MTK_LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings),
		LogFileMaxBackups: parseIntDefault("MTK_LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings),
		LogFileMaxAge:     parseIntDefault("MTK_LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings),
		LogFileCompress:   parseBoolDefault("MTK_LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings),
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// Warnings возвращает копию предупреждений, накопленных при загрузке.
func Warnings() []string {
	cfg := instance()
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()
	result := make([]string, len(cfg.warnings))
	copy(result, cfg.warnings)
	return result
}

// Env возвращает неизменяемый снимок EnvConfig. До Load() — паника: это ошибка сборки приложения.
func Env() EnvConfig {
	return instance().Env
}

func instance() *Config {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	if cfgInstance == nil {
		panic("config: Env() called before Load()")
	}
	return cfgInstance
}

// requireValue читает обязательную переменную. Если её нет и есть prompt — спрашивает оператора.
func requireValue(name, message string, secret bool, prompt Prompter) (string, error) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v, nil
	}
	if prompt == nil {
		return "", fmt.Errorf("env %s must be set", name)
	}
	v, err := prompt(name, message, secret)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("env %s must be set", name)
	}
	return v, nil
}

// parseIntDefault читает name как int; пусто/некорректно/не прошло validator — дефолт и предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseBoolDefault читает name как bool; пусто/некорректно — дефолт и предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel ограничивает уровень набором {debug, info, warn, error}.
func sanitizeLogLevel(name, defaultVal string, warnings *[]string) string {
	raw := os.Getenv(name)
	lvl := strings.ToLower(strings.TrimSpace(raw))
	switch lvl {
	case "":
		appendWarningf(warnings, "env %s is not set; using default %q", name, defaultVal)
		return defaultVal
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env %s value %q is invalid; using default %q", name, raw, defaultVal)
		return defaultVal
	}
}

// sanitizeValue возвращает непустое значение name или fallback с предупреждением.
func sanitizeValue(name, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// sanitizeURL как sanitizeValue, но требует схему http(s) и убирает завершающий "/".
func sanitizeURL(name, fallback string, warnings *[]string) string {
	v := sanitizeValue(name, fallback, warnings)
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		appendWarningf(warnings, "env %s value %q is not an http(s) URL; using default %q", name, v, fallback)
		v = fallback
	}
	return strings.TrimRight(v, "/")
}

func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }
