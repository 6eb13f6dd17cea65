package domain

import "github.com/shopspring/decimal"

// Stats — агрегаты по всей нефильтрованной коллекции заказов. Они никогда
// не выводятся из отображаемой страницы: источник — либо отдельный запрос
// /orders/stats, либо CalculateStats поверх полного набора.
type Stats struct {
	Total        int
	ByStatus     map[OrderStatus]int
	TotalRevenue decimal.Decimal
}

// EmptyStats возвращает нулевые агрегаты с инициализированной картой.
func EmptyStats() Stats {
	return Stats{
		ByStatus:     make(map[OrderStatus]int),
		TotalRevenue: decimal.Zero,
	}
}

// Clone возвращает копию с отвязанной картой статусов.
func (s Stats) Clone() Stats {
	cp := s
	cp.ByStatus = make(map[OrderStatus]int, len(s.ByStatus))
	for status, count := range s.ByStatus {
		cp.ByStatus[status] = count
	}
	return cp
}

// CalculateStats — чистая функция над срезом заказов; сетевых обращений нет,
// поэтому её можно одинаково гонять и по полному набору, и по фикстурам.
// Выручка учитывает только не отменённые и не возвращённые заказы.
func CalculateStats(orders []OrderRecord) Stats {
	stats := EmptyStats()
	stats.Total = len(orders)

	for _, order := range orders {
		stats.ByStatus[order.Status]++
		if order.Status == OrderStatusCancelled || order.Status == OrderStatusReturned {
			continue
		}
		stats.TotalRevenue = stats.TotalRevenue.Add(order.TotalAmount)
	}

	return stats
}
