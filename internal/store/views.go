package store

import (
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

// FilteredAndSorted возвращает производное представление коллекции: цепочка
// предикатов фильтра, затем одна стабильная сортировка по активной колонке.
// Результат мемоизирован и пересчитывается только при изменении коллекции,
// фильтров или сортировки.
func (s *Store) FilteredAndSorted() []domain.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredLocked()
}

// PaginatedOrders возвращает срез представления по текущей странице.
func (s *Store) PaginatedOrders() []domain.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paginatedLocked()
}

func (s *Store) filteredLocked() []domain.OrderRecord {
	if s.cachedVersion == s.version && s.cachedFiltered != nil {
		return s.cachedFiltered
	}

	filtered := make([]domain.OrderRecord, 0, len(s.orders))
	for _, order := range s.orders {
		if s.matchesLocked(order) {
			filtered = append(filtered, order)
		}
	}

	field := s.sort.Field
	asc := s.sort.Ascending
	sort.SliceStable(filtered, func(i, j int) bool {
		cmp := compareField(filtered[i], filtered[j], field)
		if asc {
			return cmp < 0
		}
		return cmp > 0
	})

	s.cachedFiltered = filtered
	s.cachedVersion = s.version

	// Итоги пагинации следуют за отфильтрованным количеством; если бэкенд
	// уже нарезал страницу, авторитетен его полный счётчик.
	total := len(filtered)
	if s.serverTotal > 0 {
		total = s.serverTotal
	}
	s.pagination.Recalculate(total)
	return filtered
}

func (s *Store) paginatedLocked() []domain.OrderRecord {
	filtered := s.filteredLocked()

	if s.serverTotal > 0 {
		// Коллекция и есть текущая страница.
		if len(filtered) > s.pagination.RecordCount {
			filtered = filtered[:s.pagination.RecordCount]
		}
		page := make([]domain.OrderRecord, len(filtered))
		copy(page, filtered)
		return page
	}

	start := s.pagination.Offset()
	if start >= len(filtered) {
		return nil
	}
	end := start + s.pagination.RecordCount
	if end > len(filtered) {
		end = len(filtered)
	}

	page := make([]domain.OrderRecord, end-start)
	copy(page, filtered[start:end])
	return page
}

// matchesLocked — цепочка предикатов в фиксированном порядке: статус →
// площадка → текстовый поиск → диапазон дат → диапазон цен.
func (s *Store) matchesLocked(order domain.OrderRecord) bool {
	f := s.filters

	if f.Status != "" && order.Status != f.Status {
		return false
	}
	if f.Platform != "" && order.Platform != f.Platform {
		return false
	}
	if f.Search != "" && !matchesSearch(order, f.Search) {
		return false
	}
	if !f.DateFrom.IsZero() && order.CreatedAt.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && order.CreatedAt.After(f.DateTo.Add(24*time.Hour-time.Nanosecond)) {
		return false
	}
	if f.PriceMin != nil && order.TotalAmount.LessThan(*f.PriceMin) {
		return false
	}
	if f.PriceMax != nil && order.TotalAmount.GreaterThan(*f.PriceMax) {
		return false
	}
	return true
}

// matchesSearch ищет подстроку без учёта регистра по номеру заказа,
// покупателю, email и позициям.
func matchesSearch(order domain.OrderRecord, search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}

	haystacks := []string{
		order.OrderNumber,
		order.CustomerName,
		order.CustomerEmail,
	}
	for _, item := range order.Items {
		haystacks = append(haystacks, item.Name, item.SKU)
	}

	for _, hay := range haystacks {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// compareField сравнивает записи по колонке; строки — без учёта регистра.
// Поддерживаются и точечные пути к вложенным атрибутам (customer.name).
func compareField(a, b domain.OrderRecord, field string) int {
	switch normalizeField(field) {
	case "orderNumber":
		return compareStrings(a.OrderNumber, b.OrderNumber)
	case "customerName":
		return compareStrings(a.CustomerName, b.CustomerName)
	case "customerEmail":
		return compareStrings(a.CustomerEmail, b.CustomerEmail)
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "platform":
		return compareStrings(string(a.Platform), string(b.Platform))
	case "totalAmount":
		return a.TotalAmount.Cmp(b.TotalAmount)
	case "itemCount":
		return len(a.Items) - len(b.Items)
	case "updatedAt":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	default: // createdAt
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}

// normalizeField сводит точечные пути к плоским именам колонок.
func normalizeField(field string) string {
	switch field {
	case "customer.name":
		return "customerName"
	case "customer.email":
		return "customerEmail"
	case "items.count":
		return "itemCount"
	}
	return field
}

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
