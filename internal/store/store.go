package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
	"github.com/vladislavdragonenkov/marketdesk/internal/history"
	"github.com/vladislavdragonenkov/marketdesk/internal/metrics"
	"github.com/vladislavdragonenkov/marketdesk/internal/orderapi"
	"github.com/vladislavdragonenkov/marketdesk/internal/queue"
)

const defaultSearchDebounce = 300 * time.Millisecond

// SortConfig — активная сортировка таблицы.
type SortConfig struct {
	Field     string
	Ascending bool
}

// State — снимок стора для биндинга UI. Orders — текущая страница
// производного представления, не вся коллекция.
type State struct {
	Orders      []domain.OrderRecord
	Filters     domain.Filters
	Pagination  domain.Pagination
	Stats       domain.Stats
	Sort        SortConfig
	Selected    []string
	Loading     bool
	Syncing     bool
	Err         error
	Unreachable bool
	History     history.State
}

// Options — зависимости стора. Client может быть nil: тогда стор работает
// только с локальной коллекцией (удобно в тестах редьюсера).
type Options struct {
	Client         *orderapi.Client
	Queue          *queue.Queue
	History        *history.History
	Metrics        *metrics.ConsoleMetrics
	Logger         *log.Entry
	SearchDebounce time.Duration
}

// Store владеет канонической коллекцией заказов, фильтрами, сортировкой,
// пагинацией, выделением и агрегатами. Все переходы состояния идут через
// редьюсер, мутации — через команды истории, сеть — через очередь запросов.
type Store struct {
	mu sync.Mutex

	orders     []domain.OrderRecord
	filters    domain.Filters
	pagination domain.Pagination
	stats      domain.Stats
	sort       SortConfig
	selected   map[string]struct{}

	loading     bool
	syncing     bool
	err         error
	unreachable bool

	// Версия коллекции/фильтров/сортировки для мемоизации представлений.
	version        uint64
	cachedVersion  uint64
	cachedFiltered []domain.OrderRecord

	// serverTotal > 0 означает, что коллекция — страница, уже нарезанная
	// бэкендом, и итоги пагинации берутся из его счётчиков.
	serverTotal int

	client  *orderapi.Client
	queue   *queue.Queue
	history *history.History
	metrics *metrics.ConsoleMetrics
	logger  *log.Entry

	baseCtx     context.Context
	baseCancel  context.CancelFunc
	listCancel  context.CancelFunc
	statsCancel context.CancelFunc

	searchDebounce time.Duration
	searchTimer    *time.Timer

	subscribers map[int]func(State)
	nextSubID   int

	closed bool
}

// New создаёт стор. Жизненный цикл таймеров и запросов привязан к Close.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-store")
	}
	if opts.History == nil {
		opts.History = history.New(history.Options{})
	}
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = defaultSearchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pagination:     domain.DefaultPagination(),
		stats:          domain.EmptyStats(),
		sort:           SortConfig{Field: "createdAt", Ascending: false},
		selected:       make(map[string]struct{}),
		client:         opts.Client,
		queue:          opts.Queue,
		history:        opts.History,
		metrics:        opts.Metrics,
		logger:         logger,
		baseCtx:        ctx,
		baseCancel:     cancel,
		searchDebounce: opts.SearchDebounce,
		subscribers:    make(map[int]func(State)),
	}

	if s.metrics != nil {
		s.history.Subscribe(func(st history.State) {
			s.metrics.SetHistoryDepth(st.UndoCount)
		})
	}
	return s
}

// Start выполняет стартовые выборки: страница заказов и нефильтрованные
// агрегаты.
func (s *Store) Start() {
	s.FetchOrders()
	s.FetchStats()
}

// Close детерминированно гасит таймеры и in-flight запросы стора.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	s.mu.Unlock()
	s.baseCancel()
}

// History возвращает движок undo/redo стора.
func (s *Store) History() *history.History { return s.history }

// Subscribe регистрирует подписчика на изменения состояния.
func (s *Store) Subscribe(fn func(State)) func() {
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

// Snapshot возвращает текущее состояние стора.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := State{
		Orders:      s.paginatedLocked(),
		Filters:     s.filters.Clone(),
		Pagination:  s.pagination,
		Stats:       s.stats.Clone(),
		Sort:        s.sort,
		Loading:     s.loading,
		Syncing:     s.syncing,
		Err:         s.err,
		Unreachable: s.unreachable,
		History:     s.history.State(),
	}
	for id := range s.selected {
		st.Selected = append(st.Selected, id)
	}
	return st
}

func (s *Store) notify() {
	s.mu.Lock()
	st := s.snapshotLocked()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// --- Редьюсер -------------------------------------------------------------

type actionKind int

const (
	actionSetOrders actionKind = iota
	actionAddOrder
	actionUpdateOrder
	actionDeleteOrder
	actionBulkUpdate
	actionReplaceMany
	actionSetFilters
	actionClearFilters
	actionSetSearch
	actionSetPage
	actionSetRecordCount
	actionSetSelected
	actionToggleSelection
	actionSortOrders
	actionSetStats
	actionSetSyncing
	actionSetLoading
	actionSetError
)

type action struct {
	kind    actionKind
	orders  []domain.OrderRecord
	order   *domain.OrderRecord
	id      string
	ids     []string
	status  domain.OrderStatus
	filters domain.Filters
	search  string
	page    int
	count   int
	field   string
	stats   domain.Stats
	flag    bool
	err     error
}

// reduce — единственное место, где меняется состояние. Инварианты (сброс
// страницы, независимость stats от страницы, чистка выделения) живут здесь,
// а не у вызывающих. Вызывается под мьютексом.
func (s *Store) reduce(a action) error {
	switch a.kind {
	case actionSetOrders:
		// Stats здесь сознательно не трогаются: их источник — отдельный
		// нефильтрованный запрос, иначе агрегаты поплывут от фильтров.
		s.orders = a.orders
		s.version++

	case actionAddOrder:
		for _, o := range s.orders {
			if o.ID == a.order.ID {
				return fmt.Errorf("insert: order %s already exists", a.order.ID)
			}
		}
		s.orders = append(s.orders, a.order.Clone())
		if s.serverTotal > 0 {
			s.serverTotal++
		}
		s.version++

	case actionUpdateOrder:
		idx := s.indexOfLocked(a.order.ID)
		if idx < 0 {
			return domain.ErrOrderNotFound
		}
		s.orders[idx] = a.order.Clone()
		s.version++

	case actionDeleteOrder:
		idx := s.indexOfLocked(a.id)
		if idx < 0 {
			return domain.ErrOrderNotFound
		}
		s.orders = append(s.orders[:idx], s.orders[idx+1:]...)
		// Удалённый заказ не может оставаться выделенным.
		delete(s.selected, a.id)
		if s.serverTotal > 0 {
			s.serverTotal--
		}
		s.version++

	case actionBulkUpdate:
		// Сначала находим все цели, затем мутируем: пропавший заказ не
		// должен оставить коллекцию полунаписанной.
		idxs := make([]int, len(a.ids))
		for i, id := range a.ids {
			idx := s.indexOfLocked(id)
			if idx < 0 {
				return domain.ErrOrderNotFound
			}
			idxs[i] = idx
		}
		now := time.Now().UTC()
		for _, idx := range idxs {
			updated := s.orders[idx].Clone()
			updated.Status = a.status
			updated.UpdatedAt = now
			s.orders[idx] = updated
		}
		s.version++

	case actionReplaceMany:
		idxs := make([]int, len(a.orders))
		for i := range a.orders {
			idx := s.indexOfLocked(a.orders[i].ID)
			if idx < 0 {
				return domain.ErrOrderNotFound
			}
			idxs[i] = idx
		}
		for i, idx := range idxs {
			s.orders[idx] = a.orders[i].Clone()
		}
		s.version++

	case actionSetFilters:
		s.filters = a.filters.Clone()
		s.pagination.CurrentPage = 1
		s.version++

	case actionClearFilters:
		s.filters = domain.Filters{}
		s.pagination.CurrentPage = 1
		s.version++

	case actionSetSearch:
		s.filters.Search = a.search
		s.pagination.CurrentPage = 1
		s.version++

	case actionSetPage:
		if a.page >= 1 {
			s.pagination.CurrentPage = a.page
		}

	case actionSetRecordCount:
		if a.count > 0 {
			s.pagination.RecordCount = a.count
			// Другой размер страницы делает текущий offset бессмысленным.
			s.pagination.CurrentPage = 1
		}

	case actionSetSelected:
		s.selected = make(map[string]struct{}, len(a.ids))
		for _, id := range a.ids {
			s.selected[id] = struct{}{}
		}

	case actionToggleSelection:
		if _, ok := s.selected[a.id]; ok {
			delete(s.selected, a.id)
		} else {
			s.selected[a.id] = struct{}{}
		}

	case actionSortOrders:
		if s.sort.Field == a.field {
			// Повторный клик по активной колонке переворачивает направление.
			s.sort.Ascending = !s.sort.Ascending
		} else {
			s.sort = SortConfig{Field: a.field, Ascending: true}
		}
		s.version++

	case actionSetStats:
		s.stats = a.stats.Clone()

	case actionSetSyncing:
		s.syncing = a.flag

	case actionSetLoading:
		s.loading = a.flag

	case actionSetError:
		s.err = a.err
		s.unreachable = domain.IsCircuitOpen(a.err)
	}

	return nil
}

func (s *Store) dispatch(a action) error {
	s.mu.Lock()
	err := s.reduce(a)
	s.mu.Unlock()
	if err == nil {
		s.notify()
	}
	return err
}

func (s *Store) indexOfLocked(id string) int {
	for i, o := range s.orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// --- Диспетчер payload-ов истории ----------------------------------------

// applyPayload применяет половину команды к коллекции. Один диспетчер
// обслуживает и forward, и inverse: полиморфизм команд сведён к закрытому
// набору операций.
func (s *Store) applyPayload(p *domain.Payload) error {
	if p == nil {
		return fmt.Errorf("payload is nil")
	}

	switch p.Op {
	case domain.PayloadInsert:
		return s.dispatch(action{kind: actionAddOrder, order: p.Order})
	case domain.PayloadReplace:
		return s.dispatch(action{kind: actionUpdateOrder, order: p.Order})
	case domain.PayloadRemove:
		return s.dispatch(action{kind: actionDeleteOrder, id: p.Order.ID})
	case domain.PayloadBulkStatus:
		return s.dispatch(action{kind: actionBulkUpdate, ids: p.IDs, status: p.Status})
	case domain.PayloadReplaceMany:
		// Один reducer-переход на весь пакет: либо все снимки встали,
		// либо коллекция не тронута.
		return s.dispatch(action{kind: actionReplaceMany, orders: p.Orders})
	default:
		return fmt.Errorf("unknown payload op %q", p.Op)
	}
}

// --- Публичные переходы ---------------------------------------------------

// SetFilters валидирует и фиксирует фильтры; страница сбрасывается на первую,
// выборка перезапускается. Нарушения возвращаются картой по полям.
func (s *Store) SetFilters(f domain.Filters) domain.FieldErrors {
	if errs := f.Validate(); !errs.Empty() {
		return errs
	}
	_ = s.dispatch(action{kind: actionSetFilters, filters: f})
	s.FetchOrders()
	return nil
}

// ClearFilters снимает все фильтры.
func (s *Store) ClearFilters() {
	_ = s.dispatch(action{kind: actionClearFilters})
	s.FetchOrders()
}

// SetSearch обновляет строку поиска; выборка дебаунсится, чтобы не гонять
// запрос на каждый символ.
func (s *Store) SetSearch(search string) {
	_ = s.dispatch(action{kind: actionSetSearch, search: search})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.searchTimer != nil {
		s.searchTimer.Stop()
	}
	s.searchTimer = time.AfterFunc(s.searchDebounce, s.FetchOrders)
	s.mu.Unlock()
}

// SetPage листает на указанную страницу.
func (s *Store) SetPage(page int) {
	_ = s.dispatch(action{kind: actionSetPage, page: page})
	s.FetchOrders()
}

// SetRecordCount меняет размер страницы; текущая страница сбрасывается.
func (s *Store) SetRecordCount(count int) {
	_ = s.dispatch(action{kind: actionSetRecordCount, count: count})
	s.FetchOrders()
}

// SortBy переключает сортировку по колонке.
func (s *Store) SortBy(field string) {
	_ = s.dispatch(action{kind: actionSortOrders, field: field})
}

// SetSelected заменяет набор выделенных заказов.
func (s *Store) SetSelected(ids []string) {
	_ = s.dispatch(action{kind: actionSetSelected, ids: ids})
}

// ToggleSelection переключает выделение одного заказа.
func (s *Store) ToggleSelection(id string) {
	_ = s.dispatch(action{kind: actionToggleSelection, id: id})
}

// CreateOrder валидирует запись, оптимистично вставляет её в коллекцию через
// команду истории и отправляет на бэкенд. Ошибки валидации возвращаются
// картой и не прерывают ничего, кроме этого перехода.
func (s *Store) CreateOrder(record domain.OrderRecord) (domain.FieldErrors, error) {
	if errs := record.ValidateInvariants(); !errs.Empty() {
		return errs, nil
	}

	cmd := domain.NewCreateCommand(record)
	if err := s.history.Execute(cmd, s.applyPayload); err != nil {
		return nil, err
	}
	s.recordCommandMetric(cmd)

	s.submitMutation("create-order", func(ctx context.Context) error {
		_, err := s.client.CreateOrder(ctx, record)
		return err
	})
	return nil, nil
}

// UpdateOrder валидирует и оптимистично применяет обновление заказа.
func (s *Store) UpdateOrder(record domain.OrderRecord) (domain.FieldErrors, error) {
	if errs := record.ValidateInvariants(); !errs.Empty() {
		return errs, nil
	}

	s.mu.Lock()
	idx := s.indexOfLocked(record.ID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, domain.ErrOrderNotFound
	}
	before := s.orders[idx].Clone()
	s.mu.Unlock()

	cmd := domain.NewUpdateCommand(before, record)
	if err := s.history.Execute(cmd, s.applyPayload); err != nil {
		return nil, err
	}
	s.recordCommandMetric(cmd)

	s.submitMutation("update-order", func(ctx context.Context) error {
		_, err := s.client.UpdateOrder(ctx, record)
		return err
	})
	return nil, nil
}

// DeleteOrder оптимистично удаляет заказ; команда хранит снимок для undo.
func (s *Store) DeleteOrder(id string) error {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrOrderNotFound
	}
	snapshot := s.orders[idx].Clone()
	s.mu.Unlock()

	cmd := domain.NewDeleteCommand(snapshot)
	if err := s.history.Execute(cmd, s.applyPayload); err != nil {
		return err
	}
	s.recordCommandMetric(cmd)

	s.submitMutation("delete-order", func(ctx context.Context) error {
		return s.client.DeleteOrder(ctx, id)
	})
	return nil
}

// BulkUpdateStatus переводит выбранные заказы в один статус одной командой
// истории: откат вернёт каждому заказу его прежний снимок.
func (s *Store) BulkUpdateStatus(ids []string, status domain.OrderStatus) error {
	s.mu.Lock()
	before := make([]domain.OrderRecord, 0, len(ids))
	for _, id := range ids {
		idx := s.indexOfLocked(id)
		if idx < 0 {
			s.mu.Unlock()
			return domain.ErrOrderNotFound
		}
		before = append(before, s.orders[idx].Clone())
	}
	s.mu.Unlock()

	cmd := domain.NewBulkUpdateCommand(before, status)
	if err := s.history.Execute(cmd, s.applyPayload); err != nil {
		return err
	}
	s.recordCommandMetric(cmd)

	s.submitMutation("bulk-update-status", func(ctx context.Context) error {
		return s.client.BulkUpdateStatus(ctx, ids, status)
	})
	return nil
}

// Undo откатывает последнюю команду локально и освежает агрегаты.
func (s *Store) Undo() error {
	if _, err := s.history.Undo(s.applyPayload); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.UndoPerformed()
	}
	s.FetchStats()
	return nil
}

// Redo повторяет откаченную команду.
func (s *Store) Redo() error {
	if _, err := s.history.Redo(s.applyPayload); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RedoPerformed()
	}
	s.FetchStats()
	return nil
}

// SyncPlatforms просит бэкенд вытянуть свежие заказы с площадок, после чего
// перезагружает коллекцию и агрегаты.
func (s *Store) SyncPlatforms() {
	if s.client == nil || s.queue == nil {
		return
	}
	_ = s.dispatch(action{kind: actionSetSyncing, flag: true})

	go func() {
		err := s.queue.Do(s.baseCtx, "sync-platforms", queue.PriorityHigh, func(ctx context.Context) error {
			return s.client.SyncOrders(ctx)
		})
		_ = s.dispatch(action{kind: actionSetSyncing, flag: false})
		if err != nil {
			_ = s.dispatch(action{kind: actionSetError, err: err})
			return
		}
		s.FetchOrders()
		s.FetchStats()
	}()
}

// submitMutation отправляет сетевую часть мутации. Локальное состояние уже
// изменено оптимистично; после подтверждения обновляются агрегаты, при
// отказе фиксируется ошибка, а данные остаются до следующего refresh.
func (s *Store) submitMutation(name string, fn func(ctx context.Context) error) {
	// Мутации и так применены локально; агрегаты сойдутся после fetchStats.
	s.FetchStats()

	if s.client == nil || s.queue == nil {
		return
	}

	go func() {
		if err := s.queue.Do(s.baseCtx, name, queue.PriorityHigh, fn); err != nil {
			if s.baseCtx.Err() != nil {
				return
			}
			s.logger.WithError(err).WithField("mutation", name).Warn("mutation failed to reach backend")
			_ = s.dispatch(action{kind: actionSetError, err: err})
		}
	}()
}

func (s *Store) recordCommandMetric(cmd *domain.Command) {
	if s.metrics != nil {
		s.metrics.CommandExecuted(string(cmd.Type))
	}
}
