package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/history"
	"github.com/vladislavdragonenkov/marketdesk/internal/metrics"
	"github.com/vladislavdragonenkov/marketdesk/internal/netstatus"
	"github.com/vladislavdragonenkov/marketdesk/internal/orderapi"
	"github.com/vladislavdragonenkov/marketdesk/internal/queue"
	"github.com/vladislavdragonenkov/marketdesk/internal/store"
)

// Dependencies содержит все зависимости ядра. NetworkStatus и RequestQueue
// существуют в одном экземпляре на процесс; их жизненным циклом управляет
// композиционный корень, а не глобальные синглтоны.
type Dependencies struct {
	Network *netstatus.Service
	Queue   *queue.Queue
	Client  *orderapi.Client
	Store   *store.Store
	Metrics *metrics.ConsoleMetrics
	Logger  *log.Entry
}

// NewDependencies собирает и связывает зависимости по конфигурации.
func NewDependencies(cfg Config, logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	network := netstatus.New(netstatus.Options{
		FailureThreshold: cfg.FailureThreshold,
		OpenTimeout:      cfg.OpenTimeout,
		Logger:           logger.WithField("component", "netstatus"),
	})
	requestQueue := queue.New(network, queue.Options{
		Workers: cfg.QueueWorkers,
		Logger:  logger.WithField("component", "request-queue"),
	})
	client := orderapi.NewClient(orderapi.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Timeout: cfg.APITimeout,
	}, network, logger.WithField("component", "orderapi"))

	consoleMetrics := metrics.NewConsoleMetrics()
	commandHistory := history.New(history.Options{
		MaxSize:         cfg.HistoryMaxSize,
		AutoBatchWindow: cfg.AutoBatchWindow,
		SealDelay:       cfg.HistorySealTime,
		Logger:          logger.WithField("component", "command-history"),
	})

	orderStore := store.New(store.Options{
		Client:         client,
		Queue:          requestQueue,
		History:        commandHistory,
		Metrics:        consoleMetrics,
		Logger:         logger.WithField("component", "order-store"),
		SearchDebounce: cfg.SearchDebounce,
	})

	return &Dependencies{
		Network: network,
		Queue:   requestQueue,
		Client:  client,
		Store:   orderStore,
		Metrics: consoleMetrics,
		Logger:  logger,
	}
}
