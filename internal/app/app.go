package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/marketdesk/internal/health"
	"github.com/vladislavdragonenkov/marketdesk/internal/orderapi"
	"github.com/vladislavdragonenkov/marketdesk/internal/queue"
	"github.com/vladislavdragonenkov/marketdesk/internal/version"
)

// Run поднимает ядро консоли: очередь запросов, стор, фоновые опросы и
// HTTP-эндпоинты метрик, и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	deps := NewDependencies(cfg, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps.Queue.Start(runCtx)

	// Снимок истории с прошлого запуска; его отсутствие или битость ничего
	// не ломают.
	if cfg.HistoryFile != "" {
		if data, err := os.ReadFile(cfg.HistoryFile); err == nil {
			if err := deps.Store.History().Import(data); err != nil {
				logger.WithError(err).Warn("failed to import history snapshot, starting clean")
			}
		}
	}

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("backend", healthcheck.NewBreakerChecker(deps.Network))
	metricsSrv := startMetricsServer(cfg.MetricsAddr, logger, healthHandler)

	deps.Store.Start()

	var wg sync.WaitGroup
	trackers := newTrackers()
	startPollers(runCtx, &wg, cfg, deps, trackers)

	<-ctx.Done()
	logger.Info("получен сигнал остановки, гасим ядро консоли")

	cancel()
	wg.Wait()

	if cfg.HistoryFile != "" {
		if data, err := deps.Store.History().Export(); err == nil {
			if err := os.WriteFile(cfg.HistoryFile, data, 0o600); err != nil {
				logger.WithError(err).Warn("failed to persist history snapshot")
			}
		}
	}

	deps.Store.Close()
	deps.Queue.Stop()
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// trackers хранят последнее известное значение фоновых опросов: при сбое
// цикла данные не обнуляются.
type trackers struct {
	mu          sync.Mutex
	tasks       []orderapi.BackgroundTask
	taskStats   orderapi.TaskStats
	connections []orderapi.Connection
}

func newTrackers() *trackers { return &trackers{} }

func (t *trackers) setTasks(tasks []orderapi.BackgroundTask, stats orderapi.TaskStats) {
	t.mu.Lock()
	t.tasks = tasks
	t.taskStats = stats
	t.mu.Unlock()
}

func (t *trackers) setConnections(conns []orderapi.Connection) {
	t.mu.Lock()
	t.connections = conns
	t.mu.Unlock()
}

// Tasks возвращает последние известные фоновые задачи.
func (t *trackers) Tasks() ([]orderapi.BackgroundTask, orderapi.TaskStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tasks, t.taskStats
}

// Connections возвращает последние известные подключения площадок.
func (t *trackers) Connections() []orderapi.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connections
}

func startPollers(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps *Dependencies, state *trackers) {
	pollers := []*queue.Poller{
		// Счётчики заказов: нефильтрованные агрегаты для бейджей статусов.
		queue.NewPoller(deps.Queue, func(ctx context.Context) error {
			stats, err := deps.Client.FetchStats(ctx)
			if err != nil {
				return err
			}
			deps.Store.ApplyStats(stats)
			return nil
		}, queue.PollerOptions{
			Name:     "order-counts-poll",
			Interval: cfg.OrdersPollInterval,
			Priority: queue.PriorityLow,
			Logger:   deps.Logger.WithField("component", "order-counts-poll"),
		}),

		// Фоновые задачи бэкенда.
		queue.NewPoller(deps.Queue, func(ctx context.Context) error {
			tasks, err := deps.Client.BackgroundTasks(ctx)
			if err != nil {
				return err
			}
			stats, err := deps.Client.BackgroundTaskStats(ctx)
			if err != nil {
				return err
			}
			state.setTasks(tasks, stats)
			return nil
		}, queue.PollerOptions{
			Name:     "background-tasks-poll",
			Interval: cfg.TasksPollInterval,
			Priority: queue.PriorityLow,
			Logger:   deps.Logger.WithField("component", "background-tasks-poll"),
		}),

		// Здоровье подключений площадок.
		queue.NewPoller(deps.Queue, func(ctx context.Context) error {
			conns, err := deps.Client.PlatformConnections(ctx)
			if err != nil {
				return err
			}
			state.setConnections(conns)
			return nil
		}, queue.PollerOptions{
			Name:     "connections-poll",
			Interval: cfg.ConnectionsPollInterval,
			Priority: queue.PriorityLow,
			Logger:   deps.Logger.WithField("component", "connections-poll"),
		}),

		// Проба латентности: только классификация качества канала.
		queue.NewPoller(deps.Queue, func(ctx context.Context) error {
			rtt, err := deps.Client.ProbeHealth(ctx)
			if err != nil {
				return err
			}
			deps.Network.ObserveProbeLatency(rtt)
			return nil
		}, queue.PollerOptions{
			Name:     "health-probe",
			Interval: cfg.ProbeInterval,
			Priority: queue.PriorityLow,
			Logger:   deps.Logger.WithField("component", "health-probe"),
		}),
	}

	for _, p := range pollers {
		wg.Add(1)
		go func(p *queue.Poller) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
