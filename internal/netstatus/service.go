package netstatus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// CircuitState — состояние circuit breaker-а.
type CircuitState int

const (
	// CircuitClosed — нормальный режим, запросы проходят.
	CircuitClosed CircuitState = iota
	// CircuitOpen — запросы блокируются до истечения openTimeout.
	CircuitOpen
	// CircuitHalfOpen — разрешён одиночный пробный запрос.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Quality — вторичный, неблокирующий сигнал качества канала. Выводится из
// латентности health-пробы и не влияет на решения breaker-а.
type Quality string

const (
	QualityUnknown Quality = "unknown"
	QualityGood    Quality = "good"
	QualityFair    Quality = "fair"
	QualityPoor    Quality = "poor"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second

	qualityGoodBelow = 200 * time.Millisecond
	qualityFairBelow = 800 * time.Millisecond
)

var (
	circuitStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketdesk_circuit_state",
		Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
	})
	consecutiveFailuresGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketdesk_circuit_consecutive_failures",
		Help: "Consecutive outbound request failures recorded by the breaker.",
	})
	probeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketdesk_health_probe_latency_seconds",
		Help:    "Round-trip latency of the lightweight health probe.",
		Buckets: prometheus.DefBuckets,
	})
)

// Snapshot — read-only срез состояния сервиса.
type Snapshot struct {
	Reachable           bool
	State               CircuitState
	ConsecutiveFailures int
	LastFailureAt       time.Time
	LastSuccessAt       time.Time
	Quality             Quality
}

// Options задаёт пороги breaker-а.
type Options struct {
	// FailureThreshold — число подряд идущих ошибок до перехода Closed → Open.
	FailureThreshold int
	// OpenTimeout — пауза в Open перед разрешением одиночной пробы.
	OpenTimeout time.Duration
	Logger      *log.Entry
}

// Service отслеживает достижимость бэкенда и состояние circuit breaker-а.
// Экземпляр один на процесс, создаётся композиционным корнем и передаётся
// зависимостям явно; весь исходящий трафик обязан сверяться с ним.
type Service struct {
	mu sync.Mutex

	state            CircuitState
	failures         int
	lastFailure      time.Time
	lastSuccess      time.Time
	quality          Quality
	failureThreshold int
	openTimeout      time.Duration

	subscribers map[int]func(Snapshot)
	nextSubID   int

	logger *log.Entry
}

// New создаёт сервис в состоянии Closed.
func New(opts Options) *Service {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "netstatus")
	}

	return &Service{
		state:            CircuitClosed,
		quality:          QualityUnknown,
		failureThreshold: opts.FailureThreshold,
		openTimeout:      opts.OpenTimeout,
		subscribers:      make(map[int]func(Snapshot)),
		logger:           logger,
	}
}

// CanMakeRequest сообщает, разрешён ли исходящий запрос. В Open по истечении
// openTimeout состояние переводится в HalfOpen и одиночная проба проходит.
// Вызывающий обязан затем сообщить результат через RecordSuccess/RecordFailure.
func (s *Service) CanMakeRequest() bool {
	s.mu.Lock()

	if s.state == CircuitOpen && time.Since(s.lastFailure) > s.openTimeout {
		s.setStateLocked(CircuitHalfOpen)
		s.logger.Info("circuit breaker half-open, allowing probe request")
		snap := s.snapshotLocked()
		subs := s.subscribersLocked()
		s.mu.Unlock()
		notifyAll(subs, snap)
		return true
	}

	allowed := s.state != CircuitOpen
	s.mu.Unlock()
	return allowed
}

// RecordFailure учитывает неудачный запрос и при достижении порога размыкает
// цепь. Неудачная проба из HalfOpen немедленно возвращает Open.
func (s *Service) RecordFailure(err error) {
	s.mu.Lock()
	s.failures++
	s.lastFailure = time.Now()
	consecutiveFailuresGauge.Set(float64(s.failures))

	transitioned := false
	if s.state == CircuitHalfOpen || (s.state == CircuitClosed && s.failures >= s.failureThreshold) {
		s.setStateLocked(CircuitOpen)
		transitioned = true
		s.logger.WithFields(log.Fields{
			"failures": s.failures,
			"error":    err,
		}).Warn("circuit breaker opened")
	}

	snap := s.snapshotLocked()
	var subs []func(Snapshot)
	if transitioned {
		subs = s.subscribersLocked()
	}
	s.mu.Unlock()
	notifyAll(subs, snap)
}

// RecordSuccess сбрасывает счётчик ошибок и замыкает цепь.
func (s *Service) RecordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.lastSuccess = time.Now()
	consecutiveFailuresGauge.Set(0)

	transitioned := s.state != CircuitClosed
	if transitioned {
		s.setStateLocked(CircuitClosed)
		s.logger.Info("circuit breaker closed")
	}

	snap := s.snapshotLocked()
	var subs []func(Snapshot)
	if transitioned {
		subs = s.subscribersLocked()
	}
	s.mu.Unlock()
	notifyAll(subs, snap)
}

// Reset возвращает сервис в исходное состояние.
func (s *Service) Reset() {
	s.mu.Lock()
	s.failures = 0
	s.quality = QualityUnknown
	consecutiveFailuresGauge.Set(0)
	transitioned := s.state != CircuitClosed
	s.setStateLocked(CircuitClosed)
	snap := s.snapshotLocked()
	var subs []func(Snapshot)
	if transitioned {
		subs = s.subscribersLocked()
	}
	s.mu.Unlock()
	notifyAll(subs, snap)
}

// ObserveProbeLatency обновляет оценку качества по латентности health-пробы.
// Сигнал только информационный: breaker на него не смотрит.
func (s *Service) ObserveProbeLatency(rtt time.Duration) {
	probeLatency.Observe(rtt.Seconds())

	quality := QualityPoor
	switch {
	case rtt < qualityGoodBelow:
		quality = QualityGood
	case rtt < qualityFairBelow:
		quality = QualityFair
	}

	s.mu.Lock()
	s.quality = quality
	s.mu.Unlock()
}

// Snapshot возвращает текущее состояние сервиса.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe регистрирует подписчика на переходы breaker-а; возвращает
// функцию отписки. Подписчики зовутся вне мьютекса.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Service) setStateLocked(state CircuitState) {
	s.state = state
	circuitStateGauge.Set(float64(state))
}

func (s *Service) snapshotLocked() Snapshot {
	return Snapshot{
		Reachable:           s.state != CircuitOpen,
		State:               s.state,
		ConsecutiveFailures: s.failures,
		LastFailureAt:       s.lastFailure,
		LastSuccessAt:       s.lastSuccess,
		Quality:             s.quality,
	}
}

func (s *Service) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notifyAll(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
