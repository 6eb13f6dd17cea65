package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketdesk/internal/netstatus"
)

// Status представляет статус компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check представляет результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — ответ health-эндпоинта консоли.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker — проверка здоровья компонента.
type Checker interface {
	Check() Check
}

// Handler отдаёт сводное состояние ядра: достижимость бэкенда, качество
// канала, зарегистрированные проверки.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

// NewHandler создаёт health handler.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// ServeHTTP выполняет все проверки и отдаёт сводный статус.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	checks := make(map[string]Check)
	overall := StatusHealthy
	for name, checker := range checkers {
		check := checker.Check()
		checks[name] = check

		if check.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if check.Status == StatusDegraded && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	response := Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler — простой liveness probe (всегда 200).
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// BreakerChecker транслирует состояние circuit breaker-а в health-статус:
// Open — unhealthy, HalfOpen или деградировавшее качество — degraded.
type BreakerChecker struct {
	service *netstatus.Service
}

// NewBreakerChecker создаёт проверку поверх netstatus.Service.
func NewBreakerChecker(service *netstatus.Service) *BreakerChecker {
	return &BreakerChecker{service: service}
}

// Check возвращает состояние достижимости бэкенда.
func (c *BreakerChecker) Check() Check {
	start := time.Now()
	snap := c.service.Snapshot()

	check := Check{
		Name:       "backend",
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}

	switch {
	case snap.State == netstatus.CircuitOpen:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("circuit open after %d consecutive failures", snap.ConsecutiveFailures)
	case snap.State == netstatus.CircuitHalfOpen:
		check.Status = StatusDegraded
		check.Message = "circuit half-open, probing"
	case snap.Quality == netstatus.QualityPoor:
		check.Status = StatusDegraded
		check.Message = "backend reachable but slow"
	}

	return check
}

var _ Checker = (*BreakerChecker)(nil)
