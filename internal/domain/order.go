package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа в консоли маркетплейсов.
type OrderStatus string

const (
	// OrderStatusPending — заказ получен, но ещё не взят в обработку.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ собирается на складе продавца.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до вручения.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — покупатель вернул заказ после вручения.
	OrderStatusReturned OrderStatus = "returned"
)

// KnownStatuses перечисляет допустимые статусы в порядке жизненного цикла.
func KnownStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusReturned,
	}
}

// Platform — маркетплейс, с которого пришёл заказ.
type Platform string

const (
	PlatformTrendyol    Platform = "trendyol"
	PlatformHepsiburada Platform = "hepsiburada"
	PlatformN11         Platform = "n11"
	PlatformAmazon      Platform = "amazon"
)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// SKU — внешний идентификатор товара на площадке.
	SKU string
	// Name — отображаемое название позиции.
	Name string
	// Qty — количество единиц товара.
	Qty int32
	// UnitPrice — цена за единицу.
	UnitPrice decimal.Decimal
}

// OrderRecord агрегирует состояние заказа в локальной коллекции консоли.
// Записи никогда не мутируются на месте: любое изменение порождает копию
// через Clone, чтобы история undo/redo могла хранить снимки без сюрпризов.
type OrderRecord struct {
	ID              string
	OrderNumber     string
	Status          OrderStatus
	Platform        Platform
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone возвращает структурную копию записи, включая срез позиций.
func (o OrderRecord) Clone() OrderRecord {
	cp := o
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		copy(cp.Items, o.Items)
	}
	return cp
}

// DisplayDate возвращает дату создания в формате, который показывает таблица.
func (o OrderRecord) DisplayDate() string {
	if o.CreatedAt.IsZero() {
		return ""
	}
	return o.CreatedAt.Format("2006-01-02")
}

// ValidateInvariants проверяет бизнес-поля заказа перед созданием/обновлением
// и возвращает ошибки по полям. Пустая карта означает валидную запись.
func (o *OrderRecord) ValidateInvariants() FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(o.CustomerName) == "" {
		errs["customerName"] = ErrCustomerNameRequired
	}
	if !validEmail(o.CustomerEmail) {
		errs["customerEmail"] = ErrCustomerEmailInvalid
	}
	if strings.TrimSpace(o.CustomerPhone) == "" {
		errs["customerPhone"] = ErrCustomerPhoneRequired
	}
	if strings.TrimSpace(o.ShippingAddress) == "" {
		errs["shippingAddress"] = ErrShippingAddressRequired
	}
	if len(o.Items) == 0 {
		errs["items"] = ErrItemsRequired
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs["items"] = ErrItemQtyInvalid
			break
		}
		if item.UnitPrice.Sign() <= 0 {
			errs["items"] = ErrItemPriceInvalid
			break
		}
	}
	if o.TotalAmount.Sign() < 0 {
		errs["totalAmount"] = ErrAmountNegative
	}

	return errs
}

// ItemsTotal суммирует qty * price по позициям.
func (o OrderRecord) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	return total
}

// validEmail делает минимальную структурную проверку адреса: локальная часть,
// одна @ и домен с точкой. Полная RFC-валидация здесь не нужна — бэкенд
// перепроверит адрес при сохранении.
func validEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	dom := addr[at+1:]
	if strings.HasPrefix(dom, ".") || strings.HasSuffix(dom, ".") {
		return false
	}
	return strings.Contains(dom, ".")
}
