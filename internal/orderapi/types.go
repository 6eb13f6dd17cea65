package orderapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
)

// Canonical — единственная форма, которую этот пакет отдаёт наружу,
// какой бы ни была форма ответа бэкенда.
type Canonical struct {
	Orders     []domain.OrderRecord
	Pagination domain.Pagination
	Stats      domain.Stats
}

// ListQuery — параметры выборки заказов; транслируются в query string.
type ListQuery struct {
	Page      int
	Limit     int
	Filters   domain.Filters
	SortBy    string
	SortOrder string
}

// TrendPoint — точка графика динамики заказов.
type TrendPoint struct {
	Date    time.Time       `json:"date"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Connection описывает подключение к площадке.
type Connection struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	Name       string    `json:"name"`
	Connected  bool      `json:"connected"`
	LastSyncAt time.Time `json:"lastSyncAt"`
}

// BackgroundTask — фоновая задача бэкенда (синхронизация, экспорт и т.п.).
type BackgroundTask struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskStats — агрегаты по фоновым задачам.
type TaskStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// TaskAction — операция жизненного цикла фоновой задачи.
type TaskAction string

const (
	TaskActionStart  TaskAction = "start"
	TaskActionPause  TaskAction = "pause"
	TaskActionResume TaskAction = "resume"
	TaskActionCancel TaskAction = "cancel"
	TaskActionRetry  TaskAction = "retry"
	TaskActionDelete TaskAction = "delete"
)
