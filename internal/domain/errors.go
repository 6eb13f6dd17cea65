package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Ошибка отсутствующего имени покупателя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// Ошибка некорректного email покупателя.
	ErrCustomerEmailInvalid = errors.New("customer email is invalid")
	// Ошибка отсутствующего телефона покупателя.
	ErrCustomerPhoneRequired = errors.New("customer phone is required")
	// Ошибка пустого адреса доставки.
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка при неположительной цене позиции.
	ErrItemPriceInvalid = errors.New("item price must be greater than zero")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total amount must be non-negative")
	// Ошибка порядка дат в фильтре.
	ErrDateRangeInverted = errors.New("dateFrom must not be after dateTo")
	// Ошибка слишком широкого диапазона дат (> 365 дней).
	ErrDateRangeTooWide = errors.New("date range must not exceed 365 days")
	// Ошибка порядка цен в фильтре.
	ErrPriceRangeInverted = errors.New("priceMin must not exceed priceMax")
	// ErrOrderNotFound возвращается, если заказ отсутствует в коллекции.
	ErrOrderNotFound = errors.New("order not found")
	// ErrEmptyHistory возвращается при undo/redo на пустом стеке.
	ErrEmptyHistory = errors.New("history is empty")
	// ErrUnknownCommandType — фатальная ошибка импорта истории: в блобе
	// встретился неизвестный дискриминатор команды.
	ErrUnknownCommandType = errors.New("unknown command type")
	// ErrCircuitOpen — запрос не был отправлен, потому что circuit breaker открыт.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrUnexpectedShape — ответ бэкенда не совпал ни с одной известной формой.
	ErrUnexpectedShape = errors.New("unexpected response shape")
	// ErrQueueStopped возвращается при постановке задачи в остановленную очередь.
	ErrQueueStopped = errors.New("request queue is stopped")
)

// FieldErrors — карта ошибок валидации по именам полей. Валидационные ошибки
// разрешаются локально и возвращаются вызывающему, а не пробрасываются наверх.
type FieldErrors map[string]error

// Error собирает детерминированное описание по алфавиту полей.
func (fe FieldErrors) Error() string {
	if len(fe) == 0 {
		return "validation passed"
	}
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %v", field, fe[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Empty сообщает, что ни одно поле не нарушено.
func (fe FieldErrors) Empty() bool { return len(fe) == 0 }

// NetworkError — временная ошибка транспорта: таймаут, обрыв соединения,
// пятисотка бэкенда. Такие ошибки ретраятся очередью с backoff.
type NetworkError struct {
	Op      string
	Status  int
	Wrapped error
}

func (e *NetworkError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("network error in %s: status %d: %v", e.Op, e.Status, e.Wrapped)
	}
	return fmt.Sprintf("network error in %s: %v", e.Op, e.Wrapped)
}

func (e *NetworkError) Unwrap() error { return e.Wrapped }

// IsNetworkError проверяет, является ли ошибка транспортной.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// ApplyError сигнализирует, что forward/inverse payload команды не удалось
// применить к коллекции. История обязана восстановить стек до её проброса.
type ApplyError struct {
	CommandID string
	Wrapped   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("command %s apply failed: %v", e.CommandID, e.Wrapped)
}

func (e *ApplyError) Unwrap() error { return e.Wrapped }

// IsCircuitOpen проверяет, была ли операция отклонена открытым breaker-ом.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
