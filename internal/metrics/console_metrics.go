package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsoleMetrics содержит метрики ядра консоли заказов.
type ConsoleMetrics struct {
	// Счётчики команд истории по типам.
	commandsExecuted *prometheus.CounterVec
	undoTotal        prometheus.Counter
	redoTotal        prometheus.Counter

	// Выборки: длительность и исходы по ресурсам (orders/stats).
	fetchDuration *prometheus.HistogramVec
	fetchResults  *prometheus.CounterVec

	// Gauge размера undo-стека.
	historyDepth prometheus.Gauge
}

// NewConsoleMetrics создаёт и регистрирует метрики в default registerer.
func NewConsoleMetrics() *ConsoleMetrics {
	return newConsoleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newConsoleMetricsWithRegisterer(registerer prometheus.Registerer) *ConsoleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ConsoleMetrics{
		commandsExecuted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketdesk_commands_executed_total",
			Help: "Total number of history commands executed by type",
		}, []string{"type"}),
		undoTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketdesk_undo_total",
			Help: "Total number of undo operations",
		}),
		redoTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketdesk_redo_total",
			Help: "Total number of redo operations",
		}),
		fetchDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "marketdesk_fetch_duration_seconds",
			Help:    "Duration of backend fetches in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"resource"}),
		fetchResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketdesk_fetch_results_total",
			Help: "Fetch outcomes grouped by resource and result",
		}, []string{"resource", "result"}),
		historyDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketdesk_history_depth",
			Help: "Current number of commands on the undo stack",
		}),
	}
}

// CommandExecuted учитывает выполненную команду истории.
func (m *ConsoleMetrics) CommandExecuted(commandType string) {
	m.commandsExecuted.WithLabelValues(commandType).Inc()
}

// UndoPerformed учитывает откат.
func (m *ConsoleMetrics) UndoPerformed() { m.undoTotal.Inc() }

// RedoPerformed учитывает повтор.
func (m *ConsoleMetrics) RedoPerformed() { m.redoTotal.Inc() }

// FetchCompleted учитывает завершённую выборку.
func (m *ConsoleMetrics) FetchCompleted(resource string, ok bool, elapsed time.Duration) {
	m.fetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	result := "ok"
	if !ok {
		result = "error"
	}
	m.fetchResults.WithLabelValues(resource, result).Inc()
}

// SetHistoryDepth обновляет размер undo-стека.
func (m *ConsoleMetrics) SetHistoryDepth(depth int) {
	m.historyDepth.Set(float64(depth))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
