package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

// exportVersion — версия формата блоба на случай будущих миграций.
const exportVersion = 1

// Блоб предназначен для переживания перезагрузки консоли: UI складывает его
// в local storage. Корректность ядра от наличия блоба не зависит.
type exportBlob struct {
	Version   int          `json:"version"`
	UndoStack []commandDTO `json:"undoStack"`
	RedoStack []commandDTO `json:"redoStack"`
}

type commandDTO struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Forward     *payloadDTO  `json:"forward,omitempty"`
	Inverse     *payloadDTO  `json:"inverse,omitempty"`
	Children    []commandDTO `json:"children,omitempty"`
}

type payloadDTO struct {
	Op     string     `json:"op"`
	Order  *orderDTO  `json:"order,omitempty"`
	Orders []orderDTO `json:"orders,omitempty"`
	IDs    []string   `json:"ids,omitempty"`
	Status string     `json:"status,omitempty"`
}

type orderDTO struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	Status          string          `json:"status"`
	Platform        string          `json:"platform"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerPhone   string          `json:"customerPhone"`
	ShippingAddress string          `json:"shippingAddress"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Items           []itemDTO       `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type itemDTO struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Qty       int32           `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Export сериализует оба стека в плоский JSON. Открытый батч в экспорт не
// попадает: он ещё не стал записью истории.
func (h *History) Export() ([]byte, error) {
	h.mu.Lock()
	blob := exportBlob{
		Version:   exportVersion,
		UndoStack: encodeCommands(h.undoStack),
		RedoStack: encodeCommands(h.redoStack),
	}
	h.mu.Unlock()

	return json.Marshal(blob)
}

// Import восстанавливает типизированные команды из блоба. Любая ошибка —
// битый JSON или неизвестный дискриминатор — очищает историю целиком:
// частично восстановленные стеки хуже пустых.
func (h *History) Import(data []byte) error {
	var blob exportBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		h.Clear()
		return fmt.Errorf("decode history blob: %w", err)
	}

	undo, err := decodeCommands(blob.UndoStack)
	if err != nil {
		h.Clear()
		return err
	}
	redo, err := decodeCommands(blob.RedoStack)
	if err != nil {
		h.Clear()
		return err
	}

	h.mu.Lock()
	h.stopSealTimerLocked()
	h.batch = nil
	h.undoStack = undo
	h.redoStack = redo
	if len(h.undoStack) > h.maxSize {
		h.undoStack = h.undoStack[len(h.undoStack)-h.maxSize:]
	}
	h.mu.Unlock()
	h.notify()
	return nil
}

func encodeCommands(cmds []*domain.Command) []commandDTO {
	out := make([]commandDTO, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, encodeCommand(cmd))
	}
	return out
}

func encodeCommand(cmd *domain.Command) commandDTO {
	dto := commandDTO{
		ID:          cmd.ID,
		Type:        string(cmd.Type),
		Description: cmd.Description,
		Timestamp:   cmd.Timestamp,
		Forward:     encodePayload(cmd.Forward),
		Inverse:     encodePayload(cmd.Inverse),
	}
	if len(cmd.Children) > 0 {
		dto.Children = encodeCommands(cmd.Children)
	}
	return dto
}

func encodePayload(p *domain.Payload) *payloadDTO {
	if p == nil {
		return nil
	}
	dto := &payloadDTO{
		Op:     string(p.Op),
		IDs:    p.IDs,
		Status: string(p.Status),
	}
	if p.Order != nil {
		o := encodeOrder(*p.Order)
		dto.Order = &o
	}
	for _, order := range p.Orders {
		dto.Orders = append(dto.Orders, encodeOrder(order))
	}
	return dto
}

func encodeOrder(o domain.OrderRecord) orderDTO {
	dto := orderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		Platform:        string(o.Platform),
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, itemDTO{
			SKU:       item.SKU,
			Name:      item.Name,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	return dto
}

func decodeCommands(dtos []commandDTO) ([]*domain.Command, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]*domain.Command, 0, len(dtos))
	for _, dto := range dtos {
		cmd, err := decodeCommand(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, nil
}

func decodeCommand(dto commandDTO) (*domain.Command, error) {
	cmdType := domain.CommandType(dto.Type)
	if !domain.KnownCommandType(cmdType) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommandType, dto.Type)
	}

	children, err := decodeCommands(dto.Children)
	if err != nil {
		return nil, err
	}

	return &domain.Command{
		ID:          dto.ID,
		Type:        cmdType,
		Description: dto.Description,
		Timestamp:   dto.Timestamp,
		Forward:     decodePayload(dto.Forward),
		Inverse:     decodePayload(dto.Inverse),
		Children:    children,
	}, nil
}

func decodePayload(dto *payloadDTO) *domain.Payload {
	if dto == nil {
		return nil
	}
	p := &domain.Payload{
		Op:     domain.PayloadOp(dto.Op),
		IDs:    dto.IDs,
		Status: domain.OrderStatus(dto.Status),
	}
	if dto.Order != nil {
		o := decodeOrder(*dto.Order)
		p.Order = &o
	}
	for _, order := range dto.Orders {
		p.Orders = append(p.Orders, decodeOrder(order))
	}
	return p
}

func decodeOrder(dto orderDTO) domain.OrderRecord {
	record := domain.OrderRecord{
		ID:              dto.ID,
		OrderNumber:     dto.OrderNumber,
		Status:          domain.OrderStatus(dto.Status),
		Platform:        domain.Platform(dto.Platform),
		CustomerName:    dto.CustomerName,
		CustomerEmail:   dto.CustomerEmail,
		CustomerPhone:   dto.CustomerPhone,
		ShippingAddress: dto.ShippingAddress,
		TotalAmount:     dto.TotalAmount,
		CreatedAt:       dto.CreatedAt,
		UpdatedAt:       dto.UpdatedAt,
	}
	for _, item := range dto.Items {
		record.Items = append(record.Items, domain.OrderItem{
			SKU:       item.SKU,
			Name:      item.Name,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	return record
}
