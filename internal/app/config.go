package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config описывает настройки ядра консоли.
type Config struct {
	// Подключение к REST-бэкенду.
	APIBaseURL string
	APIToken   string
	APITimeout time.Duration

	// HTTP-адрес для /metrics и health-эндпоинтов.
	MetricsAddr string

	// Circuit breaker.
	FailureThreshold int
	OpenTimeout      time.Duration

	// Очередь запросов.
	QueueWorkers int

	// Окна дебаунса и батчинга. Значения эмпирические, из исходной
	// реализации; здесь они только конфигурируются.
	SearchDebounce  time.Duration
	AutoBatchWindow time.Duration
	HistorySealTime time.Duration
	HistoryMaxSize  int

	// Интервалы фонового опроса.
	OrdersPollInterval      time.Duration
	TasksPollInterval       time.Duration
	ConnectionsPollInterval time.Duration
	ProbeInterval           time.Duration

	// Файл для снимка истории undo/redo между запусками; пусто — не хранить.
	HistoryFile string

	LogLevel string
}

// DefaultConfig возвращает рабочие значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:              "http://localhost:8080/api",
		APITimeout:              30 * time.Second,
		MetricsAddr:             ":9090",
		FailureThreshold:        5,
		OpenTimeout:             30 * time.Second,
		QueueWorkers:            3,
		SearchDebounce:          300 * time.Millisecond,
		AutoBatchWindow:         2 * time.Second,
		HistorySealTime:         500 * time.Millisecond,
		HistoryMaxSize:          50,
		OrdersPollInterval:      30 * time.Second,
		TasksPollInterval:       60 * time.Second,
		ConnectionsPollInterval: 60 * time.Second,
		ProbeInterval:           15 * time.Second,
		LogLevel:                "info",
	}
}

// Load собирает конфигурацию: defaults → .env (опционально) → переменные
// окружения. Обязательные поля валидируются здесь же.
func Load() (Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	def := DefaultConfig()
	viper.SetDefault("MD_API_BASE_URL", def.APIBaseURL)
	viper.SetDefault("MD_API_TIMEOUT", def.APITimeout.String())
	viper.SetDefault("MD_METRICS_ADDR", def.MetricsAddr)
	viper.SetDefault("MD_FAILURE_THRESHOLD", def.FailureThreshold)
	viper.SetDefault("MD_OPEN_TIMEOUT", def.OpenTimeout.String())
	viper.SetDefault("MD_QUEUE_WORKERS", def.QueueWorkers)
	viper.SetDefault("MD_SEARCH_DEBOUNCE", def.SearchDebounce.String())
	viper.SetDefault("MD_AUTO_BATCH_WINDOW", def.AutoBatchWindow.String())
	viper.SetDefault("MD_HISTORY_SEAL_TIME", def.HistorySealTime.String())
	viper.SetDefault("MD_HISTORY_MAX_SIZE", def.HistoryMaxSize)
	viper.SetDefault("MD_ORDERS_POLL_INTERVAL", def.OrdersPollInterval.String())
	viper.SetDefault("MD_TASKS_POLL_INTERVAL", def.TasksPollInterval.String())
	viper.SetDefault("MD_CONNECTIONS_POLL_INTERVAL", def.ConnectionsPollInterval.String())
	viper.SetDefault("MD_PROBE_INTERVAL", def.ProbeInterval.String())
	viper.SetDefault("MD_LOG_LEVEL", def.LogLevel)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Отсутствие .env — нормальная ситуация: работаем от окружения.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		APIBaseURL:              getString("MD_API_BASE_URL", def.APIBaseURL),
		APIToken:                getString("MD_API_TOKEN", ""),
		APITimeout:              getDuration("MD_API_TIMEOUT", def.APITimeout),
		MetricsAddr:             getString("MD_METRICS_ADDR", def.MetricsAddr),
		FailureThreshold:        getInt("MD_FAILURE_THRESHOLD", def.FailureThreshold),
		OpenTimeout:             getDuration("MD_OPEN_TIMEOUT", def.OpenTimeout),
		QueueWorkers:            getInt("MD_QUEUE_WORKERS", def.QueueWorkers),
		SearchDebounce:          getDuration("MD_SEARCH_DEBOUNCE", def.SearchDebounce),
		AutoBatchWindow:         getDuration("MD_AUTO_BATCH_WINDOW", def.AutoBatchWindow),
		HistorySealTime:         getDuration("MD_HISTORY_SEAL_TIME", def.HistorySealTime),
		HistoryMaxSize:          getInt("MD_HISTORY_MAX_SIZE", def.HistoryMaxSize),
		OrdersPollInterval:      getDuration("MD_ORDERS_POLL_INTERVAL", def.OrdersPollInterval),
		TasksPollInterval:       getDuration("MD_TASKS_POLL_INTERVAL", def.TasksPollInterval),
		ConnectionsPollInterval: getDuration("MD_CONNECTIONS_POLL_INTERVAL", def.ConnectionsPollInterval),
		ProbeInterval:           getDuration("MD_PROBE_INTERVAL", def.ProbeInterval),
		HistoryFile:             getString("MD_HISTORY_FILE", ""),
		LogLevel:                getString("MD_LOG_LEVEL", def.LogLevel),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("MD_API_BASE_URL is required")
	}
	if cfg.FailureThreshold <= 0 {
		return Config{}, fmt.Errorf("MD_FAILURE_THRESHOLD must be positive")
	}
	if cfg.QueueWorkers <= 0 {
		return Config{}, fmt.Errorf("MD_QUEUE_WORKERS must be positive")
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if viper.IsSet(key) {
		if v := viper.GetInt(key); v != 0 {
			return v
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if viper.IsSet(key) {
		if v := viper.GetDuration(key); v > 0 {
			return v
		}
	}
	return fallback
}
