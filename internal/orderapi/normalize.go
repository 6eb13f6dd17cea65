package orderapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

// Normalize принимает сырое тело списка заказов и приводит его к канонической
// форме. Бэкенд исторически отвечает разными формами; парсер их перебирает
// в фиксированном порядке:
//
//  1. голый массив заказов;
//  2. {data:{orders:[...], pagination:{...}}};
//  3. дважды вложенная {data:{data:[...]}};
//  4. массив в data / orders с pagination на корне.
//
// Никакая из форм не подошла — возвращаем пустой канонический результат и
// ErrUnexpectedShape: частичные данные хуже честного отказа.
func Normalize(data []byte) (Canonical, error) {
	empty := Canonical{
		Pagination: domain.DefaultPagination(),
		Stats:      domain.EmptyStats(),
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return empty, domain.ErrUnexpectedShape
	}

	// Форма 1: голый массив.
	if strings.HasPrefix(trimmed, "[") {
		var rawOrders []map[string]any
		if err := json.Unmarshal(data, &rawOrders); err != nil {
			return empty, domain.ErrUnexpectedShape
		}
		return canonicalFrom(mapOrders(rawOrders), nil, nil), nil
	}

	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return empty, domain.ErrUnexpectedShape
	}

	rootPagination, _ := root["pagination"].(map[string]any)
	rootStats, _ := root["stats"].(map[string]any)

	// Формы 2-4: массив ищется по известным путям в порядке убывания
	// специфичности.
	if inner, ok := root["data"].(map[string]any); ok {
		innerPagination, _ := inner["pagination"].(map[string]any)
		if innerPagination == nil {
			innerPagination = rootPagination
		}
		if rawOrders, ok := asObjectSlice(inner["orders"]); ok {
			return canonicalFrom(mapOrders(rawOrders), innerPagination, rootStats), nil
		}
		if rawOrders, ok := asObjectSlice(inner["data"]); ok {
			return canonicalFrom(mapOrders(rawOrders), innerPagination, rootStats), nil
		}
	}
	if rawOrders, ok := asObjectSlice(root["data"]); ok {
		return canonicalFrom(mapOrders(rawOrders), rootPagination, rootStats), nil
	}
	if rawOrders, ok := asObjectSlice(root["orders"]); ok {
		return canonicalFrom(mapOrders(rawOrders), rootPagination, rootStats), nil
	}

	return empty, domain.ErrUnexpectedShape
}

// ParseStats разбирает тело /orders/stats с теми же фолбэками по полям.
func ParseStats(data []byte) (domain.Stats, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return domain.EmptyStats(), domain.ErrUnexpectedShape
	}
	if inner, ok := root["data"].(map[string]any); ok {
		root = inner
	}
	return statsFrom(root), nil
}

// ParseOrder разбирает тело одиночного заказа (ответ create/update).
func ParseOrder(data []byte) (domain.OrderRecord, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return domain.OrderRecord{}, domain.ErrUnexpectedShape
	}
	if inner, ok := root["data"].(map[string]any); ok {
		root = inner
	}
	if inner, ok := root["order"].(map[string]any); ok {
		root = inner
	}
	return mapOrder(root), nil
}

func canonicalFrom(orders []domain.OrderRecord, rawPagination, rawStats map[string]any) Canonical {
	c := Canonical{Orders: orders}

	c.Pagination = paginationFrom(rawPagination, len(orders))
	if rawStats != nil {
		c.Stats = statsFrom(rawStats)
	} else {
		// Stats считаются по пришедшему массиву; для витрины их источником
		// всё равно служит отдельный нефильтрованный запрос.
		c.Stats = domain.CalculateStats(orders)
	}
	return c
}

func mapOrders(raw []map[string]any) []domain.OrderRecord {
	orders := make([]domain.OrderRecord, 0, len(raw))
	for _, m := range raw {
		if m == nil {
			continue
		}
		orders = append(orders, mapOrder(m))
	}
	return orders
}

// mapOrder гарантирует контракт OrderRecord независимо от разнобоя имён
// полей наверху: каждая колонка берётся по цепочке фолбэков.
func mapOrder(m map[string]any) domain.OrderRecord {
	customer, _ := m["customer"].(map[string]any)

	record := domain.OrderRecord{
		ID:              getString(m, "id", "_id", "orderId"),
		OrderNumber:     getString(m, "orderNumber", "order_number", "number"),
		Status:          domain.OrderStatus(getString(m, "status", "orderStatus")),
		Platform:        domain.Platform(getString(m, "platform", "marketplace", "source")),
		CustomerName:    getString(m, "customerName", "customer_name"),
		CustomerEmail:   getString(m, "customerEmail", "customer_email"),
		CustomerPhone:   getString(m, "customerPhone", "customer_phone"),
		ShippingAddress: getString(m, "shippingAddress", "shipping_address", "address"),
		TotalAmount:     getDecimal(m, "totalAmount", "total_amount", "total", "amount"),
		CreatedAt:       getTime(m, "createdAt", "created_at", "orderDate", "date"),
		UpdatedAt:       getTime(m, "updatedAt", "updated_at"),
	}

	if record.Status == "" {
		record.Status = domain.OrderStatusPending
	}
	if record.OrderNumber == "" {
		record.OrderNumber = record.ID
	}
	if customer != nil {
		if record.CustomerName == "" {
			record.CustomerName = getString(customer, "name")
		}
		if record.CustomerEmail == "" {
			record.CustomerEmail = getString(customer, "email")
		}
		if record.CustomerPhone == "" {
			record.CustomerPhone = getString(customer, "phone")
		}
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	record.Items = mapItems(m)
	if record.TotalAmount.IsZero() && len(record.Items) > 0 {
		record.TotalAmount = record.ItemsTotal()
	}

	return record
}

func mapItems(m map[string]any) []domain.OrderItem {
	var raw []map[string]any
	for _, key := range []string{"items", "lineItems", "order_items"} {
		if list, ok := asObjectSlice(m[key]); ok {
			raw = list
			break
		}
	}

	items := make([]domain.OrderItem, 0, len(raw))
	for _, im := range raw {
		qty := int32(getInt(im, "qty", "quantity"))
		if qty == 0 {
			qty = 1
		}
		items = append(items, domain.OrderItem{
			SKU:       getString(im, "sku", "SKU", "barcode"),
			Name:      getString(im, "name", "title", "productName"),
			Qty:       qty,
			UnitPrice: getDecimal(im, "unitPrice", "price", "unit_price"),
		})
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func paginationFrom(m map[string]any, fallbackCount int) domain.Pagination {
	p := domain.DefaultPagination()
	total := fallbackCount
	if m != nil {
		if v := getInt(m, "currentPage", "page"); v > 0 {
			p.CurrentPage = v
		}
		if v := getInt(m, "recordCount", "limit", "perPage", "pageSize"); v > 0 {
			p.RecordCount = v
		}
		if v := getInt(m, "totalRecords", "total", "totalCount"); v > 0 {
			total = v
		}
	}
	p.Recalculate(total)
	return p
}

func statsFrom(m map[string]any) domain.Stats {
	stats := domain.EmptyStats()
	stats.Total = getInt(m, "total", "totalOrders", "count")
	stats.TotalRevenue = getDecimal(m, "totalRevenue", "revenue", "total_revenue")

	byStatus, ok := m["byStatus"].(map[string]any)
	if !ok {
		byStatus, _ = m["statusCounts"].(map[string]any)
	}
	for status, v := range byStatus {
		stats.ByStatus[domain.OrderStatus(status)] = anyToInt(v)
	}
	return stats
}

func asObjectSlice(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func getString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func getInt(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if n := anyToInt(v); n != 0 {
				return n
			}
		}
	}
	return 0
}

func anyToInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(n)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func getDecimal(m map[string]any, keys ...string) decimal.Decimal {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return decimal.NewFromFloat(v)
		case string:
			if parsed, err := decimal.NewFromString(v); err == nil {
				return parsed
			}
		}
	}
	return decimal.Zero
}

func getTime(m map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		s, ok := m[key].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
