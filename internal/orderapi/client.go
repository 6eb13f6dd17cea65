package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketdesk/internal/domain"
	"github.com/vladislavdragonenkov/marketdesk/internal/netstatus"
)

const defaultTimeout = 30 * time.Second

// Config задаёт подключение к REST-бэкенду консоли.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client — REST-клиент бэкенда. Не хранит никакого состояния заказов:
// единственная его забота — транспорт, конверт ответа и нормализация форм.
// Каждый запрос отчитывается перед circuit breaker-ом.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *netstatus.Service
	logger     *log.Entry
}

// envelope — стандартный конверт всех ответов бэкенда.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// NewClient создаёт клиента; breaker может быть nil в тестах.
func NewClient(cfg Config, breaker *netstatus.Service, logger *log.Entry) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "orderapi")
	}

	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// ListOrders запрашивает страницу заказов с учётом фильтров и сортировки.
func (c *Client) ListOrders(ctx context.Context, q ListQuery) (Canonical, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	f := q.Filters
	if f.Status != "" {
		params.Set("status", string(f.Status))
	}
	if f.Platform != "" {
		params.Set("platform", string(f.Platform))
	}
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if !f.DateFrom.IsZero() {
		params.Set("dateFrom", f.DateFrom.Format("2006-01-02"))
	}
	if !f.DateTo.IsZero() {
		params.Set("dateTo", f.DateTo.Format("2006-01-02"))
	}
	if f.PriceMin != nil {
		params.Set("priceMin", f.PriceMin.String())
	}
	if f.PriceMax != nil {
		params.Set("priceMax", f.PriceMax.String())
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
		params.Set("sortOrder", q.SortOrder)
	}

	body, err := c.request(ctx, http.MethodGet, "/orders?"+params.Encode(), nil)
	if err != nil {
		return Canonical{Pagination: domain.DefaultPagination(), Stats: domain.EmptyStats()}, err
	}
	return Normalize(body)
}

// CreateOrder создаёт заказ и возвращает запись в прочтении бэкенда.
func (c *Client) CreateOrder(ctx context.Context, record domain.OrderRecord) (domain.OrderRecord, error) {
	body, err := c.request(ctx, http.MethodPost, "/orders", orderBody(record))
	if err != nil {
		return domain.OrderRecord{}, err
	}
	return ParseOrder(body)
}

// UpdateOrder обновляет заказ целиком.
func (c *Client) UpdateOrder(ctx context.Context, record domain.OrderRecord) (domain.OrderRecord, error) {
	body, err := c.request(ctx, http.MethodPut, "/orders/"+url.PathEscape(record.ID), orderBody(record))
	if err != nil {
		return domain.OrderRecord{}, err
	}
	return ParseOrder(body)
}

// DeleteOrder удаляет заказ.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodDelete, "/orders/"+url.PathEscape(id), nil)
	return err
}

// BulkUpdateStatus переводит набор заказов в один статус.
func (c *Client) BulkUpdateStatus(ctx context.Context, ids []string, status domain.OrderStatus) error {
	payload := map[string]any{"orderIds": ids, "status": string(status)}
	_, err := c.request(ctx, http.MethodPut, "/orders/bulk/status", payload)
	return err
}

// FetchStats запрашивает агрегаты по всей коллекции; фильтры не участвуют.
func (c *Client) FetchStats(ctx context.Context) (domain.Stats, error) {
	body, err := c.request(ctx, http.MethodGet, "/orders/stats", nil)
	if err != nil {
		return domain.EmptyStats(), err
	}
	return ParseStats(body)
}

// FetchTrends запрашивает динамику заказов за период.
func (c *Client) FetchTrends(ctx context.Context, timeRange string) ([]TrendPoint, error) {
	body, err := c.request(ctx, http.MethodGet, "/orders/trends?timeRange="+url.QueryEscape(timeRange), nil)
	if err != nil {
		return nil, err
	}
	var points []TrendPoint
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, domain.ErrUnexpectedShape
	}
	return points, nil
}

// SyncOrders запускает вытягивание заказов с площадок.
func (c *Client) SyncOrders(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodPost, "/orders/sync", nil)
	return err
}

// CancelOrder отменяет заказ на стороне бэкенда.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil)
	return err
}

// PlatformConnections возвращает подключения площадок.
func (c *Client) PlatformConnections(ctx context.Context) ([]Connection, error) {
	body, err := c.request(ctx, http.MethodGet, "/platforms/connections", nil)
	if err != nil {
		return nil, err
	}
	var conns []Connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, domain.ErrUnexpectedShape
	}
	return conns, nil
}

// TestConnection проверяет живость подключения площадки.
func (c *Client) TestConnection(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodPost, "/platforms/connections/"+url.PathEscape(id)+"/test", nil)
	return err
}

// SyncConnection запускает синхронизацию одного подключения.
func (c *Client) SyncConnection(ctx context.Context, id string) error {
	_, err := c.request(ctx, http.MethodPost, "/platforms/connections/"+url.PathEscape(id)+"/sync", nil)
	return err
}

// BackgroundTasks возвращает фоновые задачи бэкенда.
func (c *Client) BackgroundTasks(ctx context.Context) ([]BackgroundTask, error) {
	body, err := c.request(ctx, http.MethodGet, "/background-tasks", nil)
	if err != nil {
		return nil, err
	}
	var tasks []BackgroundTask
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, domain.ErrUnexpectedShape
	}
	return tasks, nil
}

// BackgroundTaskStats возвращает агрегаты по фоновым задачам.
func (c *Client) BackgroundTaskStats(ctx context.Context) (TaskStats, error) {
	body, err := c.request(ctx, http.MethodGet, "/background-tasks/stats", nil)
	if err != nil {
		return TaskStats{}, err
	}
	var stats TaskStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return TaskStats{}, domain.ErrUnexpectedShape
	}
	return stats, nil
}

// TaskLifecycle выполняет операцию над фоновой задачей
// (start/pause/resume/cancel/retry/delete).
func (c *Client) TaskLifecycle(ctx context.Context, id string, action TaskAction) error {
	method := http.MethodPost
	path := "/background-tasks/" + url.PathEscape(id) + "/" + string(action)
	if action == TaskActionDelete {
		method = http.MethodDelete
		path = "/background-tasks/" + url.PathEscape(id)
	}
	_, err := c.request(ctx, method, path, nil)
	return err
}

// ProbeHealth замеряет латентность HEAD /health. Проба не несёт бизнес-данных
// и используется только для классификации качества канала.
func (c *Client) ProbeHealth(ctx context.Context) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/health", nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	rtt := time.Since(start)
	if err != nil {
		return rtt, &domain.NetworkError{Op: "HEAD /health", Wrapped: err}
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return rtt, &domain.NetworkError{Op: "HEAD /health", Status: resp.StatusCode, Wrapped: fmt.Errorf("server error")}
	}
	return rtt, nil
}

// orderBody сериализует запись в снейк-фри camelCase, который ждёт бэкенд.
func orderBody(record domain.OrderRecord) map[string]any {
	items := make([]map[string]any, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, map[string]any{
			"sku":       item.SKU,
			"name":      item.Name,
			"qty":       item.Qty,
			"unitPrice": item.UnitPrice,
		})
	}
	return map[string]any{
		"id":              record.ID,
		"orderNumber":     record.OrderNumber,
		"status":          string(record.Status),
		"platform":        string(record.Platform),
		"customerName":    record.CustomerName,
		"customerEmail":   record.CustomerEmail,
		"customerPhone":   record.CustomerPhone,
		"shippingAddress": record.ShippingAddress,
		"totalAmount":     record.TotalAmount,
		"items":           items,
	}
}

// request выполняет HTTP-вызов, снимает конверт {success, data|message} и
// классифицирует ошибку. Транспортные сбои и пятисотки учитываются breaker-ом
// как отказы; любой дошедший до нас ответ — как успех связи.
func (c *Client) request(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	op := method + " " + path

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Отменённый запрос — не сбой сети: его результат договорились
		// отбрасывать, а не считать отказом.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.recordFailure(err)
		return nil, &domain.NetworkError{Op: op, Wrapped: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(err)
		return nil, &domain.NetworkError{Op: op, Wrapped: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		err := &domain.NetworkError{Op: op, Status: resp.StatusCode, Wrapped: fmt.Errorf("server error")}
		c.recordFailure(err)
		return nil, err
	}

	// Ответ дошёл: бэкенд достижим, даже если отказал по бизнес-причине.
	c.recordSuccess()

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Не все ручки заворачивают ответ в конверт; отдаём тело как есть.
		return body, nil
	}
	if len(env.Data) == 0 && !env.Success && env.Message == "" {
		return body, nil
	}

	if !env.Success && env.Message != "" {
		return nil, fmt.Errorf("%s: %s", op, env.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: status %d", op, resp.StatusCode)
	}
	if len(env.Data) > 0 {
		return env.Data, nil
	}
	return body, nil
}

func (c *Client) recordFailure(err error) {
	if c.breaker != nil {
		c.breaker.RecordFailure(err)
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}
