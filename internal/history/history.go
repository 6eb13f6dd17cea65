package history

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

var (
	// ErrIrreversible возвращается при попытке откатить команду без inverse.
	ErrIrreversible = errors.New("command is not reversible")
	// ErrBatchAlreadyOpen возвращается при повторном StartBatch.
	ErrBatchAlreadyOpen = errors.New("batch is already open")
)

const (
	defaultMaxSize         = 50
	defaultAutoBatchWindow = 2 * time.Second
	defaultSealDelay       = 500 * time.Millisecond
)

// ApplyFunc применяет payload команды к коллекции вызывающего. История сама
// никогда не ходит в сеть и не знает про коллекцию — она только решает, какой
// payload применить.
type ApplyFunc func(p *domain.Payload) error

// State — read-only снимок истории для биндинга в UI.
type State struct {
	CanUndo         bool
	CanRedo         bool
	UndoCount       int
	RedoCount       int
	LastDescription string
}

// Options задаёт параметры истории. Окна батчинга взяты из исходной
// реализации и настраиваются, а не выводятся заново.
type Options struct {
	MaxSize         int
	AutoBatchWindow time.Duration
	SealDelay       time.Duration
	Logger          *log.Entry
}

// openBatch — накапливаемый, ещё не запечатанный Batch.
type openBatch struct {
	description string
	children    []*domain.Command
	auto        bool
}

// History — undo/redo движок поверх стека обратимых команд с time-based
// автобатчингом быстрых однотипных правок.
type History struct {
	mu sync.Mutex

	undoStack []*domain.Command
	redoStack []*domain.Command

	batch     *openBatch
	sealTimer *time.Timer

	maxSize         int
	autoBatchWindow time.Duration
	sealDelay       time.Duration

	subscribers map[int]func(State)
	nextSubID   int

	logger *log.Entry
}

// New создаёт историю с лимитом в 50 команд и окнами батчинга по умолчанию.
func New(opts Options) *History {
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.AutoBatchWindow <= 0 {
		opts.AutoBatchWindow = defaultAutoBatchWindow
	}
	if opts.SealDelay <= 0 {
		opts.SealDelay = defaultSealDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "command-history")
	}

	return &History{
		maxSize:         opts.MaxSize,
		autoBatchWindow: opts.AutoBatchWindow,
		sealDelay:       opts.SealDelay,
		subscribers:     make(map[int]func(State)),
		logger:          logger,
	}
}

// Execute применяет forward payload команды через apply и записывает команду
// в историю: в открытый батч, в автобатч или напрямую в undo-стек.
// Любая новая команда очищает redo-стек.
func (h *History) Execute(cmd *domain.Command, apply ApplyFunc) error {
	if cmd == nil {
		return errors.New("command is nil")
	}

	if err := apply(cmd.Forward); err != nil {
		return &domain.ApplyError{CommandID: cmd.ID, Wrapped: err}
	}

	h.mu.Lock()
	h.redoStack = nil

	switch {
	case h.batch != nil && !h.batch.auto:
		// Явный батч собирает всё подряд до endBatch.
		h.batch.children = append(h.batch.children, cmd)
	case h.batch != nil && h.batch.auto:
		if h.sameTypeAsBatch(cmd) {
			h.batch.children = append(h.batch.children, cmd)
			h.resetSealTimerLocked()
		} else {
			// Команда другого типа закрывает автобатч и идёт отдельной записью.
			h.sealBatchLocked()
			h.pushLocked(cmd)
		}
	case h.shouldAutoBatchLocked(cmd):
		prev := h.popUndoLocked()
		h.batch = &openBatch{
			description: "auto " + string(cmd.Type),
			children:    []*domain.Command{prev, cmd},
			auto:        true,
		}
		h.resetSealTimerLocked()
		h.logger.WithFields(log.Fields{
			"type":   cmd.Type,
			"window": h.autoBatchWindow,
		}).Debug("auto-batch opened")
	default:
		h.pushLocked(cmd)
	}

	h.mu.Unlock()
	h.notify()
	return nil
}

// Undo откатывает верхнюю команду undo-стека. При ошибке применения команда
// возвращается на место: история никогда молча не теряет записи.
func (h *History) Undo(apply ApplyFunc) (*domain.Command, error) {
	h.mu.Lock()
	h.sealBatchLocked()

	if len(h.undoStack) == 0 {
		h.mu.Unlock()
		return nil, domain.ErrEmptyHistory
	}

	cmd := h.popUndoLocked()
	if !cmd.Reversible() {
		h.undoStack = append(h.undoStack, cmd)
		h.mu.Unlock()
		return nil, ErrIrreversible
	}
	h.mu.Unlock()

	if err := applyInverse(cmd, apply); err != nil {
		h.mu.Lock()
		h.undoStack = append(h.undoStack, cmd)
		h.mu.Unlock()
		h.notify()
		return nil, &domain.ApplyError{CommandID: cmd.ID, Wrapped: err}
	}

	h.mu.Lock()
	h.redoStack = append(h.redoStack, cmd)
	h.mu.Unlock()
	h.notify()
	return cmd, nil
}

// Redo повторяет последнюю откаченную команду; симметричен Undo.
func (h *History) Redo(apply ApplyFunc) (*domain.Command, error) {
	h.mu.Lock()
	if len(h.redoStack) == 0 {
		h.mu.Unlock()
		return nil, domain.ErrEmptyHistory
	}
	cmd := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.mu.Unlock()

	if err := applyForward(cmd, apply); err != nil {
		h.mu.Lock()
		h.redoStack = append(h.redoStack, cmd)
		h.mu.Unlock()
		h.notify()
		return nil, &domain.ApplyError{CommandID: cmd.ID, Wrapped: err}
	}

	h.mu.Lock()
	h.pushLocked(cmd)
	h.mu.Unlock()
	h.notify()
	return cmd, nil
}

// StartBatch открывает явную группировку: команды до EndBatch станут одним
// атомарным шагом undo.
func (h *History) StartBatch(description string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.batch != nil {
		if h.batch.auto {
			// Явная группировка важнее: запечатываем автобатч.
			h.sealBatchLocked()
		} else {
			return ErrBatchAlreadyOpen
		}
	}
	h.batch = &openBatch{description: description}
	return nil
}

// EndBatch запечатывает явный батч. Пустой батч отбрасывается без следа.
func (h *History) EndBatch() {
	h.mu.Lock()
	h.sealBatchLocked()
	h.mu.Unlock()
	h.notify()
}

// Seal принудительно закрывает открытый автобатч, не дожидаясь таймера.
func (h *History) Seal() {
	h.mu.Lock()
	h.sealBatchLocked()
	h.mu.Unlock()
	h.notify()
}

// Clear сбрасывает обе половины истории и открытый батч.
func (h *History) Clear() {
	h.mu.Lock()
	h.stopSealTimerLocked()
	h.undoStack = nil
	h.redoStack = nil
	h.batch = nil
	h.mu.Unlock()
	h.notify()
}

// State возвращает снимок истории для UI.
func (h *History) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

// Subscribe регистрирует подписчика на изменения стеков и возвращает
// функцию отписки.
func (h *History) Subscribe(fn func(State)) func() {
	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	h.subscribers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subscribers, id)
		h.mu.Unlock()
	}
}

func (h *History) stateLocked() State {
	st := State{
		CanRedo:   len(h.redoStack) > 0,
		UndoCount: len(h.undoStack),
		RedoCount: len(h.redoStack),
	}
	if n := len(h.undoStack); n > 0 {
		top := h.undoStack[n-1]
		// Undo снимает только вершину, поэтому и CanUndo отвечает за неё:
		// необратимая команда сверху делает откат недоступным.
		st.CanUndo = top.Reversible()
		st.LastDescription = top.Description
	}
	return st
}

// notify рассылает снимок вне мьютекса, чтобы подписчики могли дергать
// методы истории.
func (h *History) notify() {
	h.mu.Lock()
	st := h.stateLocked()
	subs := make([]func(State), 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (h *History) pushLocked(cmd *domain.Command) {
	h.undoStack = append(h.undoStack, cmd)
	if len(h.undoStack) > h.maxSize {
		// Старейшая команда вытесняется.
		copy(h.undoStack, h.undoStack[1:])
		h.undoStack = h.undoStack[:h.maxSize]
	}
}

func (h *History) popUndoLocked() *domain.Command {
	cmd := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	return cmd
}

// shouldAutoBatchLocked: автобатчинг смотрит только на тип команды и время,
// не на payload — две правки разных заказов в окне тоже группируются.
func (h *History) shouldAutoBatchLocked(cmd *domain.Command) bool {
	if cmd.Type == domain.CommandBatch {
		return false
	}
	n := len(h.undoStack)
	if n == 0 {
		return false
	}
	prev := h.undoStack[n-1]
	if prev.Type != cmd.Type {
		return false
	}
	return cmd.Timestamp.Sub(prev.Timestamp) <= h.autoBatchWindow
}

func (h *History) sameTypeAsBatch(cmd *domain.Command) bool {
	children := h.batch.children
	return len(children) > 0 && children[len(children)-1].Type == cmd.Type
}

// sealBatchLocked превращает открытый батч в одну команду на undo-стеке.
func (h *History) sealBatchLocked() {
	h.stopSealTimerLocked()
	if h.batch == nil {
		return
	}
	batch := h.batch
	h.batch = nil

	switch len(batch.children) {
	case 0:
		// Пустой батч отбрасываем.
	case 1:
		h.pushLocked(batch.children[0])
	default:
		h.pushLocked(domain.NewBatchCommand(batch.description, batch.children))
	}
}

func (h *History) resetSealTimerLocked() {
	h.stopSealTimerLocked()
	h.sealTimer = time.AfterFunc(h.sealDelay, func() {
		h.mu.Lock()
		h.sealBatchLocked()
		h.mu.Unlock()
		h.notify()
	})
}

func (h *History) stopSealTimerLocked() {
	if h.sealTimer != nil {
		h.sealTimer.Stop()
		h.sealTimer = nil
	}
}

// applyForward применяет forward payload; для Batch — детей по порядку.
func applyForward(cmd *domain.Command, apply ApplyFunc) error {
	if cmd.Type == domain.CommandBatch {
		for _, child := range cmd.Children {
			if err := applyForward(child, apply); err != nil {
				return err
			}
		}
		return nil
	}
	return apply(cmd.Forward)
}

// applyInverse применяет inverse payload; для Batch — детей в обратном
// порядке, чтобы откат был зеркален выполнению.
func applyInverse(cmd *domain.Command, apply ApplyFunc) error {
	if cmd.Type == domain.CommandBatch {
		for i := len(cmd.Children) - 1; i >= 0; i-- {
			if err := applyInverse(cmd.Children[i], apply); err != nil {
				return err
			}
		}
		return nil
	}
	return apply(cmd.Inverse)
}
