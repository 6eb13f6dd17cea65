package queue

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
	"github.com/vladislavdragonenkov/marketdesk/internal/netstatus"
)

// Priority — ярус приоритета задачи. Меньшее значение — выше приоритет;
// внутри яруса порядок FIFO.
type Priority int

const (
	// PriorityHigh — интерактивные действия пользователя.
	PriorityHigh Priority = iota
	// PriorityNormal — обновления данных по запросу.
	PriorityNormal
	// PriorityLow — фоновый polling.
	PriorityLow

	priorityTiers = 3
)

const defaultWorkers = 3

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketdesk_request_queue_depth",
		Help: "Number of requests waiting in the queue per priority tier.",
	}, []string{"priority"})
	queueInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketdesk_request_queue_in_flight",
		Help: "Number of requests currently executing.",
	})
	queueProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketdesk_request_queue_processed_total",
		Help: "Processed queue requests grouped by result.",
	}, []string{"result"})
)

func priorityLabel(p Priority) string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// Task — единица работы очереди. Контекст отменяется при остановке очереди.
type Task func(ctx context.Context) error

// QueuedRequest живёт от постановки в очередь до завершения или отказа.
// Контекст вызывающего едет вместе с задачей: отмена до или во время
// исполнения прерывает именно этот запрос.
type QueuedRequest struct {
	name       string
	task       Task
	ctx        context.Context
	priority   Priority
	enqueuedAt time.Time
	done       chan error
}

// Options настраивает очередь запросов.
type Options struct {
	// Workers ограничивает число одновременно исполняемых запросов.
	Workers int
	Logger  *log.Entry
}

// Queue — приоритетная очередь исходящих запросов с ограниченной
// конкурентностью. Все запросы сверяются с circuit breaker-ом: при открытой
// цепи задача не исполняется и завершается ErrCircuitOpen.
type Queue struct {
	breaker *netstatus.Service
	logger  *log.Entry
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	pending [priorityTiers][]*QueuedRequest
	stopped bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New создаёт очередь; экземпляр один на процесс, как и breaker.
func New(breaker *netstatus.Service, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "request-queue")
	}

	q := &Queue{
		breaker: breaker,
		logger:  logger,
		workers: opts.Workers,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start запускает воркеров. Очередь работает до отмены ctx или Stop.
func (q *Queue) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}

	// Будим воркеров при отмене контекста, иначе они застрянут в Wait.
	go func() {
		<-runCtx.Done()
		q.mu.Lock()
		q.stopped = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	q.logger.WithField("workers", q.workers).Info("request queue started")
}

// Stop останавливает воркеров и отказывает всем ожидающим запросам.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	q.mu.Lock()
	var orphans []*QueuedRequest
	for tier := range q.pending {
		orphans = append(orphans, q.pending[tier]...)
		q.pending[tier] = nil
		queueDepth.WithLabelValues(priorityLabel(Priority(tier))).Set(0)
	}
	q.mu.Unlock()

	for _, req := range orphans {
		req.done <- domain.ErrQueueStopped
		close(req.done)
	}
	q.logger.Info("request queue stopped")
}

// Enqueue ставит задачу в очередь и возвращает канал результата.
// Канал получает ровно одно значение и закрывается. Задача будет исполнена
// на контексте, производном от ctx: отмена ctx прерывает и ожидание, и
// уже начавшийся запрос.
func (q *Queue) Enqueue(ctx context.Context, name string, priority Priority, task Task) <-chan error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := &QueuedRequest{
		name:       name,
		task:       task,
		ctx:        ctx,
		priority:   priority,
		enqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		req.done <- domain.ErrQueueStopped
		close(req.done)
		return req.done
	}
	tier := int(priority)
	if tier < 0 || tier >= priorityTiers {
		tier = int(PriorityLow)
	}
	q.pending[tier] = append(q.pending[tier], req)
	queueDepth.WithLabelValues(priorityLabel(Priority(tier))).Set(float64(len(q.pending[tier])))
	q.cond.Signal()
	q.mu.Unlock()

	return req.done
}

// Do ставит задачу и синхронно дожидается результата или отмены ctx.
func (q *Queue) Do(ctx context.Context, name string, priority Priority, task Task) error {
	select {
	case err := <-q.Enqueue(ctx, name, priority, task):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		req := q.next()
		if req == nil {
			return
		}
		q.execute(ctx, req)
	}
}

// next снимает запрос из самого приоритетного непустого яруса; nil означает
// остановку очереди.
func (q *Queue) next() *QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		// Остановленная очередь не дорабатывает хвост: ожидающие запросы
		// получат отказ в Stop.
		if q.stopped {
			return nil
		}
		for tier := 0; tier < priorityTiers; tier++ {
			if len(q.pending[tier]) == 0 {
				continue
			}
			req := q.pending[tier][0]
			q.pending[tier] = q.pending[tier][1:]
			queueDepth.WithLabelValues(priorityLabel(Priority(tier))).Set(float64(len(q.pending[tier])))
			return req
		}
		q.cond.Wait()
	}
}

func (q *Queue) execute(ctx context.Context, req *QueuedRequest) {
	if err := req.ctx.Err(); err != nil {
		// Вызывающий передумал, пока запрос стоял в очереди.
		queueProcessed.WithLabelValues("cancelled").Inc()
		req.done <- err
		close(req.done)
		return
	}

	if q.breaker != nil && !q.breaker.CanMakeRequest() {
		// Запрос даже не отправляется: цепь разомкнута.
		q.logger.WithFields(log.Fields{
			"request":  req.name,
			"priority": priorityLabel(req.priority),
			"waited":   time.Since(req.enqueuedAt),
		}).Debug("request rejected, circuit is open")
		queueProcessed.WithLabelValues("circuit_open").Inc()
		req.done <- domain.ErrCircuitOpen
		close(req.done)
		return
	}

	// Задача живёт на контексте вызывающего; остановка очереди тоже её
	// прерывает.
	taskCtx, cancel := context.WithCancel(req.ctx)
	stop := context.AfterFunc(ctx, cancel)

	queueInFlight.Inc()
	err := req.task(taskCtx)
	queueInFlight.Dec()

	stop()
	cancel()

	if err != nil {
		queueProcessed.WithLabelValues("error").Inc()
	} else {
		queueProcessed.WithLabelValues("ok").Inc()
	}

	req.done <- err
	close(req.done)
}
