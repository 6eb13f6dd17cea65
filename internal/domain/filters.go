package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Время в сутках, на которое ограничен диапазон дат фильтра.
const maxFilterSpanDays = 365

// Filters описывает действующий набор фильтров коллекции заказов.
// Все поля опциональны; нулевое значение — «фильтр не задан».
type Filters struct {
	Status   OrderStatus
	Platform Platform
	Search   string
	DateFrom time.Time
	DateTo   time.Time
	PriceMin *decimal.Decimal
	PriceMax *decimal.Decimal
}

// Empty сообщает, что ни один фильтр не активен.
func (f Filters) Empty() bool {
	return f.Status == "" && f.Platform == "" && f.Search == "" &&
		f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		f.PriceMin == nil && f.PriceMax == nil
}

// Validate проверяет согласованность диапазонов. Нарушения сообщаются по
// полям и никогда не исправляются молча.
func (f Filters) Validate() FieldErrors {
	errs := FieldErrors{}

	if !f.DateFrom.IsZero() && !f.DateTo.IsZero() {
		if f.DateFrom.After(f.DateTo) {
			errs["dateFrom"] = ErrDateRangeInverted
		} else if f.DateTo.Sub(f.DateFrom) > maxFilterSpanDays*24*time.Hour {
			errs["dateTo"] = ErrDateRangeTooWide
		}
	}

	if f.PriceMin != nil && f.PriceMax != nil && f.PriceMin.GreaterThan(*f.PriceMax) {
		errs["priceMin"] = ErrPriceRangeInverted
	}

	return errs
}

// Clone возвращает копию фильтров с отвязанными указателями цен.
func (f Filters) Clone() Filters {
	cp := f
	if f.PriceMin != nil {
		v := *f.PriceMin
		cp.PriceMin = &v
	}
	if f.PriceMax != nil {
		v := *f.PriceMax
		cp.PriceMax = &v
	}
	return cp
}
