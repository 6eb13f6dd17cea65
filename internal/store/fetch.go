package store

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
	"github.com/vladislavdragonenkov/marketdesk/internal/orderapi"
	"github.com/vladislavdragonenkov/marketdesk/internal/queue"
)

// FetchOrders запускает выборку текущей страницы с учётом фильтров.
// Новая выборка отменяет предшествующую: «живым» может быть только один
// запрос списка, и поздний ответ отменённого всегда отбрасывается.
func (s *Store) FetchOrders() {
	if s.client == nil || s.queue == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.listCancel != nil {
		s.listCancel()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.listCancel = cancel

	q := orderapi.ListQuery{
		Page:      s.pagination.CurrentPage,
		Limit:     s.pagination.RecordCount,
		Filters:   s.filters.Clone(),
		SortBy:    s.sort.Field,
		SortOrder: sortOrderParam(s.sort.Ascending),
	}
	s.mu.Unlock()

	_ = s.dispatch(action{kind: actionSetLoading, flag: true})

	go func() {
		start := time.Now()
		var canonical orderapi.Canonical
		err := s.queue.Do(ctx, "fetch-orders", queue.PriorityNormal, func(ctx context.Context) error {
			var listErr error
			canonical, listErr = s.client.ListOrders(ctx, q)
			return listErr
		})

		if ctx.Err() != nil {
			// Выборку отменил преемник или teardown: её ответ устарел.
			return
		}

		if s.metrics != nil {
			s.metrics.FetchCompleted("orders", err == nil, time.Since(start))
		}

		if err != nil {
			// Последние хорошие данные остаются на экране; показываем
			// только индикатор ошибки.
			_ = s.dispatch(action{kind: actionSetLoading, flag: false})
			_ = s.dispatch(action{kind: actionSetError, err: err})
			return
		}

		s.mu.Lock()
		_ = s.reduce(action{kind: actionSetOrders, orders: canonical.Orders})
		if canonical.Pagination.TotalRecords > len(canonical.Orders) {
			// Бэкенд уже отдал страницу: его счётчики авторитетны.
			s.serverTotal = canonical.Pagination.TotalRecords
		} else {
			s.serverTotal = 0
		}
		s.loading = false
		s.err = nil
		s.unreachable = false
		s.mu.Unlock()
		s.notify()
	}()
}

// FetchStats запрашивает агрегаты по всей коллекции. Запрос независим от
// выборки страницы и никогда не передаёт фильтры: итоговые цифры не должны
// зависеть от того, что сейчас на экране.
func (s *Store) FetchStats() {
	if s.client == nil || s.queue == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.statsCancel != nil {
		s.statsCancel()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.statsCancel = cancel
	s.mu.Unlock()

	go func() {
		start := time.Now()
		stats, err := s.client.FetchStats(ctx)
		if ctx.Err() != nil {
			return
		}

		if s.metrics != nil {
			s.metrics.FetchCompleted("stats", err == nil, time.Since(start))
		}

		if err != nil {
			// Прежние агрегаты лучше нулевых.
			s.logger.WithError(err).Warn("stats fetch failed, keeping last values")
			return
		}
		_ = s.dispatch(action{kind: actionSetStats, stats: stats})
	}()
}

// ApplyStats записывает агрегаты, полученные внешним опросом, минуя
// собственный запрос стора.
func (s *Store) ApplyStats(stats domain.Stats) {
	_ = s.dispatch(action{kind: actionSetStats, stats: stats})
}

// Refresh перезагружает и страницу, и агрегаты.
func (s *Store) Refresh() {
	s.FetchOrders()
	s.FetchStats()
}

func sortOrderParam(asc bool) string {
	if asc {
		return "asc"
	}
	return "desc"
}
