package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// CreateOrderResponse — результат приёма заказа.
type CreateOrderResponse struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

// OrderResponse — заказ из API.
type OrderResponse struct {
	ID              string              `json:"order_id"`
	IdempotencyKey  string              `json:"idempotency_key,omitempty"`
	CustomerEmail   string              `json:"customer_email"`
	TotalAmount     string              `json:"total_amount"`
	OrderDate       string              `json:"order_date"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	InventoryStatus string              `json:"inventory_status"`
	EmailStatus     string              `json:"email_status"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

// OrderItemResponse — позиция заказа из API.
type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	LineTotal   string `json:"line_total"`
}

// HistoryItemResponse — запись истории статусов.
type HistoryItemResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// OrderSummaryResponse — заказ в списке заказов покупателя.
type OrderSummaryResponse struct {
	ID          string `json:"order_id"`
	TotalAmount string `json:"total_amount"`
	OrderDate   string `json:"order_date"`
	Status      string `json:"status"`
	ItemCount   int    `json:"item_count"`
}

// WorkerStatusResponse — сохранённый снимок здоровья воркера.
type WorkerStatusResponse struct {
	WorkerName     string  `json:"worker_name"`
	Status         string  `json:"status"`
	LastCheckTime  string  `json:"last_check_time"`
	TotalProcessed int64   `json:"total_processed"`
	TotalErrors    int64   `json:"total_errors"`
	ErrorRate      float64 `json:"error_rate"`
}

// HealthReport — отчёт /health без конверта data.
type HealthReport struct {
	Status        string                 `json:"status"`
	TotalDuration float64                `json:"total_duration"`
	Entries       map[string]HealthEntry `json:"entries"`
}

// HealthEntry — результат одной проверки.
type HealthEntry struct {
	Status      string         `json:"status"`
	Description string         `json:"description,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	Duration    float64        `json:"duration"`
}

// --- Request types ---

// CreateOrderRequest — создание заказа.
type CreateOrderRequest struct {
	CustomerEmail string             `json:"customer_email"`
	TotalAmount   string             `json:"total_amount"`
	Items         []OrderItemRequest `json:"items"`
}

// OrderItemRequest — позиция в запросе.
type OrderItemRequest struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

// HealthScope — какой набор проверок запрашивать.
type HealthScope string

const (
	HealthAll   HealthScope = "/health"
	HealthReady HealthScope = "/health/ready"
	HealthLive  HealthScope = "/health/live"
)

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Orderflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// PlaceOrder отправляет заказ. Пустой key — без ключа идемпотентности.
func (c *Client) PlaceOrder(ctx context.Context, req CreateOrderRequest, key string) (*CreateOrderResponse, error) {
	header := http.Header{}
	if key != "" {
		header.Set("Idempotency-Key", key)
	}

	var result CreateOrderResponse
	err := c.doData(ctx, http.MethodPost, "/api/v1/orders", req, header, &result)
	return &result, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(ctx context.Context, id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get(ctx, "/api/v1/orders/"+url.PathEscape(id), &order)
	return &order, err
}

// OrderHistory возвращает историю статусов заказа.
func (c *Client) OrderHistory(ctx context.Context, id string) ([]HistoryItemResponse, error) {
	var history []HistoryItemResponse
	err := c.list(ctx, "/api/v1/orders/"+url.PathEscape(id)+"/history", &history)
	return history, err
}

// ListCustomerOrders возвращает заказы покупателя.
func (c *Client) ListCustomerOrders(ctx context.Context, email string) ([]OrderSummaryResponse, error) {
	var orders []OrderSummaryResponse
	err := c.list(ctx, "/api/v1/customers/"+url.PathEscape(email)+"/orders", &orders)
	return orders, err
}

// --- Health ---

// Health запускает проверки. Ответ 503 — это отчёт, а не ошибка.
func (c *Client) Health(ctx context.Context, scope HealthScope) (*HealthReport, error) {
	return c.health(ctx, string(scope))
}

// WorkerHealth проверяет один воркер по имени.
func (c *Client) WorkerHealth(ctx context.Context, name string) (*HealthReport, error) {
	return c.health(ctx, "/health/workers/"+url.PathEscape(name))
}

// ListWorkers возвращает сохранённые снимки воркеров.
func (c *Client) ListWorkers(ctx context.Context) ([]WorkerStatusResponse, error) {
	var workers []WorkerStatusResponse
	err := c.list(ctx, "/api/v1/workers", &workers)
	return workers, err
}

func (c *Client) health(ctx context.Context, path string) (*HealthReport, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		if err := c.checkError(resp); err != nil {
			return nil, err
		}
	}

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &report, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, nil, result)
}

func (c *Client) list(ctx context.Context, path string, result any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, header http.Header, result any) error {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	if len(er.Error.Fields) > 0 {
		fields := make([]string, 0, len(er.Error.Fields))
		for f, msg := range er.Error.Fields {
			fields = append(fields, f+" "+msg)
		}
		sort.Strings(fields)
		return fmt.Errorf("%s: %s (%s)", er.Error.Code, er.Error.Message, strings.Join(fields, "; "))
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
