package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommandType — закрытый набор типов команд истории.
type CommandType string

const (
	CommandCreate     CommandType = "create"
	CommandUpdate     CommandType = "update"
	CommandDelete     CommandType = "delete"
	CommandBulkUpdate CommandType = "bulk_update"
	CommandBatch      CommandType = "batch"
)

// KnownCommandType проверяет дискриминатор при импорте истории.
func KnownCommandType(t CommandType) bool {
	switch t {
	case CommandCreate, CommandUpdate, CommandDelete, CommandBulkUpdate, CommandBatch:
		return true
	}
	return false
}

// PayloadOp — элементарная операция над коллекцией, которую умеет применять
// диспетчер стора. Команда описывает мутацию парой таких операций:
// forward и inverse.
type PayloadOp string

const (
	// PayloadInsert вставляет запись в коллекцию.
	PayloadInsert PayloadOp = "insert"
	// PayloadReplace заменяет запись по ID целиком.
	PayloadReplace PayloadOp = "replace"
	// PayloadRemove удаляет запись по ID.
	PayloadRemove PayloadOp = "remove"
	// PayloadBulkStatus переводит набор записей в один статус.
	PayloadBulkStatus PayloadOp = "bulk_status"
	// PayloadReplaceMany возвращает набору записей прежние снимки.
	PayloadReplaceMany PayloadOp = "replace_many"
)

// Payload — применяемая половина команды. Поля заполняются в зависимости
// от операции; снимки всегда делаются до мутации и хранятся копиями.
type Payload struct {
	Op     PayloadOp
	Order  *OrderRecord
	Orders []OrderRecord
	IDs    []string
	Status OrderStatus
}

// Clone делает глубокую копию payload, чтобы стек истории не делил память
// с живой коллекцией.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	cp := &Payload{Op: p.Op, Status: p.Status}
	if p.Order != nil {
		o := p.Order.Clone()
		cp.Order = &o
	}
	if p.Orders != nil {
		cp.Orders = make([]OrderRecord, len(p.Orders))
		for i, o := range p.Orders {
			cp.Orders[i] = o.Clone()
		}
	}
	if p.IDs != nil {
		cp.IDs = append([]string(nil), p.IDs...)
	}
	return cp
}

// Command — обратимое описание одной мутации коллекции. Inverse == nil
// означает необратимую команду; undo для неё невозможен.
type Command struct {
	ID          string
	Type        CommandType
	Description string
	Timestamp   time.Time
	Forward     *Payload
	Inverse     *Payload
	// Children заполняется только для Batch.
	Children []*Command
}

// Reversible сообщает, можно ли откатить команду. Batch обратим только
// если обратимы все дочерние команды.
func (c *Command) Reversible() bool {
	if c.Type == CommandBatch {
		for _, child := range c.Children {
			if !child.Reversible() {
				return false
			}
		}
		return len(c.Children) > 0
	}
	return c.Inverse != nil
}

func newCommand(t CommandType, description string) *Command {
	return &Command{
		ID:          uuid.NewString(),
		Type:        t,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}

// NewCreateCommand описывает создание заказа: forward вставляет запись,
// inverse удаляет её.
func NewCreateCommand(record OrderRecord) *Command {
	snap := record.Clone()
	cmd := newCommand(CommandCreate, "create order "+record.OrderNumber)
	cmd.Forward = &Payload{Op: PayloadInsert, Order: &snap}
	inv := record.Clone()
	cmd.Inverse = &Payload{Op: PayloadRemove, Order: &inv}
	return cmd
}

// NewUpdateCommand описывает обновление: inverse хранит снимок записи,
// сделанный до мутации, и восстанавливает прежние значения полностью.
func NewUpdateCommand(before, after OrderRecord) *Command {
	prev := before.Clone()
	next := after.Clone()
	cmd := newCommand(CommandUpdate, "update order "+before.OrderNumber)
	cmd.Forward = &Payload{Op: PayloadReplace, Order: &next}
	cmd.Inverse = &Payload{Op: PayloadReplace, Order: &prev}
	return cmd
}

// NewDeleteCommand описывает удаление: inverse возвращает запись целиком.
func NewDeleteCommand(record OrderRecord) *Command {
	snap := record.Clone()
	cmd := newCommand(CommandDelete, "delete order "+record.OrderNumber)
	cmd.Forward = &Payload{Op: PayloadRemove, Order: &snap}
	inv := record.Clone()
	cmd.Inverse = &Payload{Op: PayloadInsert, Order: &inv}
	return cmd
}

// NewBulkUpdateCommand описывает массовую смену статуса. before — снимки
// затронутых записей до мутации; inverse возвращает их как были.
func NewBulkUpdateCommand(before []OrderRecord, status OrderStatus) *Command {
	ids := make([]string, len(before))
	snaps := make([]OrderRecord, len(before))
	for i, o := range before {
		ids[i] = o.ID
		snaps[i] = o.Clone()
	}

	cmd := newCommand(CommandBulkUpdate, "bulk status "+string(status))
	cmd.Forward = &Payload{Op: PayloadBulkStatus, IDs: ids, Status: status}
	cmd.Inverse = &Payload{Op: PayloadReplaceMany, Orders: snaps}
	return cmd
}

// NewBatchCommand группирует дочерние команды в один атомарный шаг undo.
func NewBatchCommand(description string, children []*Command) *Command {
	cmd := newCommand(CommandBatch, description)
	cmd.Children = children
	return cmd
}
