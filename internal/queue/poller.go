package queue

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

const defaultPollInterval = 30 * time.Second

// PollFunc выполняет один цикл фонового опроса. Функция сама отвечает за
// сохранение последнего удачного значения: poller при ошибке ничего не
// сбрасывает.
type PollFunc func(ctx context.Context) error

// PollerOptions задаёт параметры фонового опроса.
type PollerOptions struct {
	Name     string
	Interval time.Duration
	Priority Priority
	Logger   *log.Entry
}

// Poller гоняет PollFunc по интервалу через очередь запросов. Опрос
// приостанавливается, пока вкладка скрыта (Hide), и возобновляется с
// немедленным догоняющим вызовом (Show). Циклы не накладываются друг на
// друга: пока прошлый не завершился, тики пропускаются.
type Poller struct {
	name     string
	interval time.Duration
	priority Priority
	queue    *Queue
	task     PollFunc
	logger   *log.Entry

	mu            sync.Mutex
	visible       bool
	inFlight      bool
	failureStreak int
	lastGoodAt    time.Time

	kick chan struct{}
}

// NewPoller создаёт poller; запуск — через Run.
func NewPoller(q *Queue, task PollFunc, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.Name == "" {
		opts.Name = "poller"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", opts.Name)
	}

	return &Poller{
		name:     opts.Name,
		interval: opts.Interval,
		priority: opts.Priority,
		queue:    q,
		task:     task,
		logger:   logger,
		visible:  true,
		kick:     make(chan struct{}, 1),
	}
}

// Run блокируется до отмены ctx. Первый цикл выполняется сразу.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		case <-p.kick:
			p.runOnce(ctx)
		}
	}
}

// Hide приостанавливает опрос (вкладка скрыта).
func (p *Poller) Hide() {
	p.mu.Lock()
	p.visible = false
	p.mu.Unlock()
	p.logger.Debug("polling paused, tab hidden")
}

// Show возобновляет опрос и сразу просит догоняющий цикл.
func (p *Poller) Show() {
	p.mu.Lock()
	wasHidden := !p.visible
	p.visible = true
	p.mu.Unlock()

	if wasHidden {
		p.logger.Debug("polling resumed, requesting catch-up poll")
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// LastGoodAt возвращает момент последнего удачного цикла.
func (p *Poller) LastGoodAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastGoodAt
}

func (p *Poller) runOnce(ctx context.Context) {
	p.mu.Lock()
	if !p.visible || p.inFlight {
		// Скрытая вкладка или незавершённый прошлый цикл: дополнительные
		// конкурентные запросы не порождаем.
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	err := p.queue.Do(ctx, p.name, p.priority, Task(p.task))

	p.mu.Lock()
	p.inFlight = false
	switch {
	case err == nil:
		p.failureStreak = 0
		p.lastGoodAt = time.Now()
	case domain.IsCircuitOpen(err):
		// Опрос при открытой цепи просто пропущен; это не деградация.
	default:
		p.failureStreak++
	}
	streak := p.failureStreak
	p.mu.Unlock()

	if err != nil && !domain.IsCircuitOpen(err) && ctx.Err() == nil {
		// Мягкая деградация: предупреждаем и оставляем последнее известное
		// значение, следующая попытка — по обычному интервалу.
		p.logger.WithFields(log.Fields{
			"streak": streak,
			"error":  err,
		}).Warn("poll cycle failed, keeping last known value")
	}
}
