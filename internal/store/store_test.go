package store

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
	"github.com/vladislavdragonenkov/marketdesk/internal/history"
)

// newLocalStore — стор без клиента и очереди: сетевые вызовы превращаются
// в no-op, а редьюсер и история работают как в бою.
func newLocalStore() *Store {
	return New(Options{
		History: history.New(history.Options{AutoBatchWindow: time.Nanosecond}),
	})
}

func seedOrder(id string, status domain.OrderStatus, platform domain.Platform, amount int64, created time.Time) domain.OrderRecord {
	return domain.OrderRecord{
		ID:              id,
		OrderNumber:     "ORD-" + id,
		Status:          status,
		Platform:        platform,
		CustomerName:    "Customer " + id,
		CustomerEmail:   "c" + id + "@example.com",
		CustomerPhone:   "+90 555",
		ShippingAddress: "addr",
		TotalAmount:     decimal.NewFromInt(amount),
		Items: []domain.OrderItem{
			{SKU: "SKU-" + id, Name: "Item " + id, Qty: 1, UnitPrice: decimal.NewFromInt(amount)},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func seedStore(s *Store, orders ...domain.OrderRecord) {
	_ = s.dispatch(action{kind: actionSetOrders, orders: orders})
}

func day(d int) time.Time {
	return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestStore_CreateOrder_Optimistic(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	record := seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0))
	errs, err := s.CreateOrder(record)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !errs.Empty() {
		t.Fatalf("unexpected validation errors: %v", errs)
	}

	view := s.FilteredAndSorted()
	if len(view) != 1 || view[0].ID != "1" {
		t.Fatalf("order must appear immediately, got %+v", view)
	}
	if !s.Snapshot().History.CanUndo {
		t.Fatal("create must be undoable")
	}
}

func TestStore_CreateOrder_ValidationStopsEverything(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	bad := seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0))
	bad.CustomerName = ""

	errs, err := s.CreateOrder(bad)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if errs.Empty() {
		t.Fatal("expected validation errors")
	}
	if len(s.FilteredAndSorted()) != 0 {
		t.Fatal("invalid order must not enter the collection")
	}
	if s.Snapshot().History.CanUndo {
		t.Fatal("invalid order must not create a history entry")
	}
}

func TestStore_UpdateOrder_UndoRestoresSnapshot(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	original := seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0))
	seedStore(s, original)

	updated := original.Clone()
	updated.Status = domain.OrderStatusShipped
	updated.CustomerName = "Renamed"

	errs, err := s.UpdateOrder(updated)
	if err != nil || !errs.Empty() {
		t.Fatalf("update: errs=%v err=%v", errs, err)
	}
	if got := s.FilteredAndSorted()[0]; got.Status != domain.OrderStatusShipped || got.CustomerName != "Renamed" {
		t.Fatalf("update must apply optimistically, got %+v", got)
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	got := s.FilteredAndSorted()[0]
	if got.Status != domain.OrderStatusPending || got.CustomerName != original.CustomerName {
		t.Fatalf("undo must restore the full prior snapshot, got %+v", got)
	}

	if err := s.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if got := s.FilteredAndSorted()[0]; got.Status != domain.OrderStatusShipped {
		t.Fatalf("redo must reapply the update, got %+v", got)
	}
}

func TestStore_UpdateOrder_NotFound(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	ghost := seedOrder("ghost", domain.OrderStatusPending, domain.PlatformTrendyol, 10, day(0))
	if _, err := s.UpdateOrder(ghost); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestStore_DeleteOrder_PrunesSelection(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusPending, domain.PlatformTrendyol, 200, day(1)),
	)
	s.SetSelected([]string{"1", "2"})

	if err := s.DeleteOrder("1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	st := s.Snapshot()
	if len(st.Selected) != 1 || st.Selected[0] != "2" {
		t.Fatalf("deleted order must leave the selection, got %v", st.Selected)
	}

	// Undo возвращает запись, но не её выделение.
	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(s.FilteredAndSorted()) != 2 {
		t.Fatal("undo of delete must reinsert the order")
	}
}

func TestStore_BulkUpdate_UndoRestoresPerOrderStatuses(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusProcessing, domain.PlatformN11, 200, day(1)),
		seedOrder("3", domain.OrderStatusDelivered, domain.PlatformAmazon, 300, day(2)),
	)

	if err := s.BulkUpdateStatus([]string{"1", "2"}, domain.OrderStatusShipped); err != nil {
		t.Fatalf("bulk update: %v", err)
	}

	byID := func() map[string]domain.OrderStatus {
		out := map[string]domain.OrderStatus{}
		for _, o := range s.FilteredAndSorted() {
			out[o.ID] = o.Status
		}
		return out
	}

	got := byID()
	if got["1"] != domain.OrderStatusShipped || got["2"] != domain.OrderStatusShipped {
		t.Fatalf("bulk update must hit every target, got %v", got)
	}
	if got["3"] != domain.OrderStatusDelivered {
		t.Fatalf("untouched orders must keep their status, got %v", got)
	}

	// Один undo откатывает всю массовую операцию, каждому — его статус.
	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	got = byID()
	if got["1"] != domain.OrderStatusPending || got["2"] != domain.OrderStatusProcessing {
		t.Fatalf("undo must restore per-order statuses, got %v", got)
	}
}

func TestStore_BulkUpdate_UnknownIDFailsWhole(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s, seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)))

	if err := s.BulkUpdateStatus([]string{"1", "nope"}, domain.OrderStatusShipped); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if s.FilteredAndSorted()[0].Status != domain.OrderStatusPending {
		t.Fatal("failed bulk update must not leave partial changes")
	}
	if s.Snapshot().History.CanUndo {
		t.Fatal("failed bulk update must not create a history entry")
	}
}

func TestStore_BulkRedoAfterRefreshDrop_MutatesNothing(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusProcessing, domain.PlatformN11, 200, day(1)),
	)
	if err := s.BulkUpdateStatus([]string{"1", "2"}, domain.OrderStatusShipped); err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}

	// Фоновая выборка перезаписала коллекцию, заказ "2" с бэкенда пропал.
	seedStore(s, seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)))

	if err := s.Redo(); err == nil {
		t.Fatal("redo over a missing order must fail")
	}
	if got := s.FilteredAndSorted()[0].Status; got != domain.OrderStatusPending {
		t.Fatalf("failed redo must not touch surviving orders, got %s", got)
	}
	if !s.Snapshot().History.CanRedo {
		t.Fatal("failed redo must put the command back")
	}
}

func TestStore_BulkUndoAfterRefreshDrop_MutatesNothing(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusProcessing, domain.PlatformN11, 200, day(1)),
	)
	if err := s.BulkUpdateStatus([]string{"1", "2"}, domain.OrderStatusShipped); err != nil {
		t.Fatalf("bulk update: %v", err)
	}

	// Коллекция обновилась без заказа "2": его прежний снимок некуда класть.
	seedStore(s, seedOrder("1", domain.OrderStatusShipped, domain.PlatformTrendyol, 100, day(0)))

	if err := s.Undo(); err == nil {
		t.Fatal("undo over a missing order must fail")
	}
	if got := s.FilteredAndSorted()[0].Status; got != domain.OrderStatusShipped {
		t.Fatalf("failed undo must not partially revert, got %s", got)
	}
}

func TestStore_SetFilters_ResetsPageAndValidates(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	var orders []domain.OrderRecord
	for i := 0; i < 45; i++ {
		orders = append(orders, seedOrder(string(rune('a'+i%26))+string(rune('0'+i/26)), domain.OrderStatusPending, domain.PlatformTrendyol, int64(10+i), day(i%30)))
	}
	seedStore(s, orders...)
	s.SetRecordCount(10)
	s.SetPage(4)

	if got := s.Snapshot().Pagination.CurrentPage; got != 4 {
		t.Fatalf("expected page 4, got %d", got)
	}

	s.SetFilters(domain.Filters{Status: domain.OrderStatusPending})
	if got := s.Snapshot().Pagination.CurrentPage; got != 1 {
		t.Fatalf("filter change must reset to page 1, got %d", got)
	}

	// Невалидные фильтры не меняют состояние.
	bad := domain.Filters{DateFrom: day(10), DateTo: day(1)}
	errs := s.SetFilters(bad)
	if errs.Empty() {
		t.Fatal("expected validation errors")
	}
	if !s.Snapshot().Filters.DateFrom.IsZero() {
		t.Fatal("rejected filters must not be applied")
	}
}

func TestStore_FilterPredicates(t *testing.T) {
	min := decimal.NewFromInt(150)
	max := decimal.NewFromInt(250)

	tests := []struct {
		name    string
		filters domain.Filters
		wantIDs []string
	}{
		{
			name:    "status",
			filters: domain.Filters{Status: domain.OrderStatusShipped},
			wantIDs: []string{"2"},
		},
		{
			name:    "platform",
			filters: domain.Filters{Platform: domain.PlatformN11},
			wantIDs: []string{"3"},
		},
		{
			name:    "search by order number",
			filters: domain.Filters{Search: "ord-1"},
			wantIDs: []string{"1"},
		},
		{
			name:    "search by item name",
			filters: domain.Filters{Search: "item 3"},
			wantIDs: []string{"3"},
		},
		{
			name:    "date range includes boundary day",
			filters: domain.Filters{DateFrom: day(1), DateTo: day(2)},
			wantIDs: []string{"2", "3"},
		},
		{
			name:    "price range inclusive",
			filters: domain.Filters{PriceMin: &min, PriceMax: &max},
			wantIDs: []string{"2"},
		},
		{
			name:    "combined filters narrow",
			filters: domain.Filters{Status: domain.OrderStatusPending, Platform: domain.PlatformTrendyol},
			wantIDs: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newLocalStore()
			defer s.Close()
			seedStore(s,
				seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
				seedOrder("2", domain.OrderStatusShipped, domain.PlatformTrendyol, 200, day(1)),
				seedOrder("3", domain.OrderStatusPending, domain.PlatformN11, 300, day(2)),
			)

			if errs := s.SetFilters(tt.filters); !errs.Empty() {
				t.Fatalf("filters rejected: %v", errs)
			}

			got := s.FilteredAndSorted()
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %v, got %+v", tt.wantIDs, got)
			}
			seen := map[string]bool{}
			for _, o := range got {
				seen[o.ID] = true
			}
			for _, id := range tt.wantIDs {
				if !seen[id] {
					t.Fatalf("expected id %s in result, got %v", id, seen)
				}
			}
		})
	}
}

func TestStore_DateToIsInclusiveOfWholeDay(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	lateEvening := time.Date(2025, 5, 2, 23, 30, 0, 0, time.UTC)
	seedStore(s, seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, lateEvening))

	// DateTo указывает на полночь того же дня: заказ в 23:30 должен пройти.
	s.SetFilters(domain.Filters{DateTo: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)})
	if len(s.FilteredAndSorted()) != 1 {
		t.Fatal("dateTo must include the whole end day")
	}
}

func TestStore_SortToggle(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 300, day(0)),
		seedOrder("2", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(1)),
		seedOrder("3", domain.OrderStatusPending, domain.PlatformTrendyol, 200, day(2)),
	)

	s.SortBy("totalAmount")
	got := s.FilteredAndSorted()
	if got[0].ID != "2" || got[2].ID != "1" {
		t.Fatalf("first click must sort ascending, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}

	// Повторный клик по той же колонке переворачивает направление.
	s.SortBy("totalAmount")
	got = s.FilteredAndSorted()
	if got[0].ID != "1" || got[2].ID != "2" {
		t.Fatalf("second click must sort descending, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}

	// Клик по другой колонке начинает с возрастания.
	s.SortBy("customerName")
	if cfg := s.Snapshot().Sort; cfg.Field != "customerName" || !cfg.Ascending {
		t.Fatalf("new column must start ascending, got %+v", cfg)
	}
}

func TestStore_SortByDottedPath(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	a := seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0))
	a.CustomerName = "zeynep"
	b := seedOrder("2", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(1))
	b.CustomerName = "Ahmet"
	seedStore(s, a, b)

	s.SortBy("customer.name")
	got := s.FilteredAndSorted()
	// Без учёта регистра: Ahmet раньше zeynep.
	if got[0].ID != "2" {
		t.Fatalf("dotted path must map to customerName, got %v first", got[0].ID)
	}
}

func TestStore_PaginationDerivedFromFilteredSet(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	var orders []domain.OrderRecord
	for i := 0; i < 25; i++ {
		status := domain.OrderStatusPending
		if i >= 20 {
			status = domain.OrderStatusShipped
		}
		orders = append(orders, seedOrder(string(rune('a'+i)), status, domain.PlatformTrendyol, 100, day(i)))
	}
	seedStore(s, orders...)
	s.SetRecordCount(10)

	s.FilteredAndSorted()
	if p := s.Snapshot().Pagination; p.TotalRecords != 25 || p.TotalPages != 3 {
		t.Fatalf("expected 25/3, got %+v", p)
	}

	// Фильтр сужает набор: итоги пагинации следуют за ним.
	s.SetFilters(domain.Filters{Status: domain.OrderStatusShipped})
	s.FilteredAndSorted()
	if p := s.Snapshot().Pagination; p.TotalRecords != 5 || p.TotalPages != 1 || p.CurrentPage != 1 {
		t.Fatalf("pagination must follow the filtered set, got %+v", p)
	}
}

func TestStore_PageClampsAfterDeletingLastItemOnLastPage(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	var orders []domain.OrderRecord
	for i := 0; i < 11; i++ {
		orders = append(orders, seedOrder(string(rune('a'+i)), domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(i)))
	}
	seedStore(s, orders...)
	s.SetRecordCount(10)
	s.SetPage(2)

	page := s.PaginatedOrders()
	if len(page) != 1 {
		t.Fatalf("expected single order on page 2, got %d", len(page))
	}

	if err := s.DeleteOrder(page[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	s.FilteredAndSorted()
	if p := s.Snapshot().Pagination; p.CurrentPage != 1 || p.TotalPages != 1 {
		t.Fatalf("page must clamp after the last page vanishes, got %+v", p)
	}
	if got := len(s.PaginatedOrders()); got != 10 {
		t.Fatalf("expected full first page, got %d", got)
	}
}

func TestStore_StatsIndependentOfFiltersAndPage(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusShipped, domain.PlatformN11, 200, day(1)),
	)

	stats := domain.EmptyStats()
	stats.Total = 120
	stats.TotalRevenue = decimal.NewFromInt(50000)
	s.ApplyStats(stats)

	s.SetFilters(domain.Filters{Status: domain.OrderStatusShipped})
	s.SetPage(1)

	got := s.Snapshot().Stats
	if got.Total != 120 || !got.TotalRevenue.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("stats must not be derived from the visible page, got %+v", got)
	}
}

func TestStore_ServerPaginatedMode(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	// Бэкенд отдал страницу из 10 записей при 35 во всей коллекции.
	var page []domain.OrderRecord
	for i := 0; i < 10; i++ {
		page = append(page, seedOrder(string(rune('a'+i)), domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(i)))
	}
	seedStore(s, page...)
	s.mu.Lock()
	s.serverTotal = 35
	s.pagination.RecordCount = 10
	s.pagination.CurrentPage = 2
	s.mu.Unlock()

	got := s.PaginatedOrders()
	if len(got) != 10 {
		t.Fatalf("server mode must treat the collection as the page, got %d", len(got))
	}
	if p := s.Snapshot().Pagination; p.TotalRecords != 35 || p.TotalPages != 4 {
		t.Fatalf("server totals must be authoritative, got %+v", p)
	}
}

func TestStore_ToggleSelection(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	s.ToggleSelection("1")
	if got := s.Snapshot().Selected; len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected selection [1], got %v", got)
	}
	s.ToggleSelection("1")
	if got := s.Snapshot().Selected; len(got) != 0 {
		t.Fatalf("second toggle must deselect, got %v", got)
	}
}

func TestStore_SetSearchAppliesImmediately(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	seedStore(s,
		seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)),
		seedOrder("2", domain.OrderStatusPending, domain.PlatformTrendyol, 200, day(1)),
	)
	s.SetPage(1)

	s.SetSearch("ORD-2")
	// Фильтрация по поиску локальна и мгновенна; дебаунсится только сетевая
	// выборка.
	got := s.FilteredAndSorted()
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("search must filter immediately, got %+v", got)
	}
}

func TestStore_SubscribeReceivesSnapshots(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	var lastLen int
	calls := 0
	unsubscribe := s.Subscribe(func(st State) {
		calls++
		lastLen = len(st.Orders)
	})

	seedStore(s, seedOrder("1", domain.OrderStatusPending, domain.PlatformTrendyol, 100, day(0)))
	if calls == 0 || lastLen != 1 {
		t.Fatalf("subscriber must see the new collection, calls=%d len=%d", calls, lastLen)
	}

	unsubscribe()
	before := calls
	seedStore(s)
	if calls != before {
		t.Fatal("unsubscribed callback must not fire")
	}
}

func TestStore_UndoOnEmptyHistory(t *testing.T) {
	s := newLocalStore()
	defer s.Close()

	if err := s.Undo(); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
	if err := s.Redo(); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}
