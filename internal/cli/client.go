package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не ходит в internal/api) ---

// TaskSummary — шаг принятого плана.
type TaskSummary struct {
	Name       string         `json:"name"`
	WorkerType string         `json:"worker_type"`
	Priority   string         `json:"priority"`
	DependsOn  []string       `json:"depends_on,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// PlanSummary — план в момент приёма.
type PlanSummary struct {
	PlanID    string        `json:"plan_id"`
	RequestID string        `json:"request_id,omitempty"`
	Kind      string        `json:"kind"`
	Priority  string        `json:"priority"`
	Tasks     []TaskSummary `json:"tasks"`
	CreatedAt string        `json:"created_at"`
}

// TaskReport — итог task в результате плана.
type TaskReport struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	WorkerType string         `json:"worker_type"`
	Status     string         `json:"status"`
	RetryCount int            `json:"retry_count"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// PlanResult — результат плана.
type PlanResult struct {
	PlanID          string       `json:"plan_id"`
	Kind            string       `json:"kind"`
	Priority        string       `json:"priority"`
	Status          string       `json:"status"`
	Success         bool         `json:"success"`
	Partial         bool         `json:"partial"`
	TotalTasks      int          `json:"total_tasks"`
	Completed       int          `json:"completed"`
	Failed          int          `json:"failed"`
	Unfinished      int          `json:"unfinished"`
	Tasks           []TaskReport `json:"tasks"`
	Errors          []string     `json:"errors,omitempty"`
	DegradedWorkers []string     `json:"degraded_workers,omitempty"`
	Error           string       `json:"error,omitempty"`
	StartedAt       string       `json:"started_at"`
	FinishedAt      string       `json:"finished_at"`
	ElapsedMs       int64        `json:"elapsed_ms"`
}

// SubmitResponse — ответ на приём операции.
type SubmitResponse struct {
	Plan   PlanSummary `json:"plan"`
	Result *PlanResult `json:"result,omitempty"`
}

// PlanListItem — план в списке.
type PlanListItem struct {
	PlanID     string `json:"plan_id"`
	Kind       string `json:"kind"`
	Priority   string `json:"priority"`
	Status     string `json:"status"`
	Success    bool   `json:"success"`
	TotalTasks int    `json:"total_tasks"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// WorkerResponse — воркер из API.
type WorkerResponse struct {
	Type            string   `json:"type"`
	Capabilities    []string `json:"capabilities,omitempty"`
	Health          string   `json:"health"`
	HealthMessage   string   `json:"health_message,omitempty"`
	HealthUpdatedAt string   `json:"health_updated_at"`
	RegisteredAt    string   `json:"registered_at"`
}

// TemplateStep — шаг шаблона.
type TemplateStep struct {
	Name       string   `json:"name"`
	WorkerType string   `json:"worker_type"`
	DependsOn  []string `json:"depends_on,omitempty"`
	Priority   string   `json:"priority,omitempty"`
}

// TemplateResponse — шаблон плана.
type TemplateResponse struct {
	Kind  string         `json:"kind"`
	Steps []TemplateStep `json:"steps"`
}

// StatsResponse — сводка по серверу.
type StatsResponse struct {
	Running     bool           `json:"running"`
	PoolSize    int            `json:"pool_size"`
	ActivePlans int            `json:"active_plans"`
	Workers     map[string]int `json:"workers"`
	Kinds       []string       `json:"kinds"`
}

// --- Request types ---

// SubmitOperationRequest — запрос на операцию.
type SubmitOperationRequest struct {
	Kind      string         `json:"kind"`
	Priority  string         `json:"priority,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// SubmitOpts — параметры приёма операции.
type SubmitOpts struct {
	// Wait — сколько ждать результата. 0 — не ждать.
	Wait time.Duration

	// IdempotencyKey — передаётся заголовком Idempotency-Key.
	IdempotencyKey string
}

// ListPlansOpts — параметры фильтрации планов.
type ListPlansOpts struct {
	Kind   string
	Status string
	Limit  int
	Offset int
}

// ReportHealthRequest — отчёт о здоровье воркера.
type ReportHealthRequest struct {
	Health  string `json:"health"`
	Message string `json:"message,omitempty"`
}

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
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для dbflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Operations ---

// SubmitOperation отправляет операцию на выполнение.
func (c *Client) SubmitOperation(req SubmitOperationRequest, opts SubmitOpts) (*SubmitResponse, error) {
	path := "/api/v1/operations"
	if opts.Wait > 0 {
		path += "?" + url.Values{"wait": {opts.Wait.String()}}.Encode()
	}

	headers := map[string]string{}
	if opts.IdempotencyKey != "" {
		headers["Idempotency-Key"] = opts.IdempotencyKey
	}

	// Ожидание результата не должно упираться в таймаут клиента
	client := c
	if opts.Wait > 0 {
		client = &Client{baseURL: c.baseURL, httpClient: &http.Client{Timeout: opts.Wait + c.httpClient.Timeout}}
	}

	var resp SubmitResponse
	err := client.doData(http.MethodPost, path, req, headers, &resp)
	return &resp, err
}

// PreviewOperation строит план на сервере без выполнения.
func (c *Client) PreviewOperation(req SubmitOperationRequest) (*PlanSummary, error) {
	var plan PlanSummary
	err := c.post("/api/v1/operations/preview", req, &plan)
	return &plan, err
}

// ListTemplates возвращает шаблоны планов.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", nil, &templates)
	return templates, err
}

// --- Plans ---

// ListPlans возвращает планы с фильтрацией.
func (c *Client) ListPlans(opts ListPlansOpts) ([]PlanListItem, error) {
	params := url.Values{}
	if opts.Kind != "" {
		params.Set("kind", opts.Kind)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var plans []PlanListItem
	err := c.list("/api/v1/plans", params, &plans)
	return plans, err
}

// GetPlan возвращает результат плана.
func (c *Client) GetPlan(id string) (*PlanResult, error) {
	var plan PlanResult
	err := c.get("/api/v1/plans/"+url.PathEscape(id), &plan)
	return &plan, err
}

// CancelPlan отменяет план.
func (c *Client) CancelPlan(id string) error {
	return c.post("/api/v1/plans/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// --- Workers ---

// ListWorkers возвращает воркеры.
func (c *Client) ListWorkers() ([]WorkerResponse, error) {
	var workers []WorkerResponse
	err := c.list("/api/v1/workers", nil, &workers)
	return workers, err
}

// GetWorker возвращает воркер по типу.
func (c *Client) GetWorker(workerType string) (*WorkerResponse, error) {
	var w WorkerResponse
	err := c.get("/api/v1/workers/"+url.PathEscape(workerType), &w)
	return &w, err
}

// ReportHealth отправляет отчёт о здоровье воркера.
func (c *Client) ReportHealth(workerType string, req ReportHealthRequest) error {
	return c.put("/api/v1/workers/"+url.PathEscape(workerType)+"/health", req, nil)
}

// Stats возвращает сводку по серверу.
func (c *Client) Stats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, nil, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, nil, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil, nil)
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

func (c *Client) doData(method, path string, body any, headers map[string]string, result any) error {
	resp, err := c.do(method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
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

func (c *Client) do(method, path string, body any, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.httpClient.Do(req)
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
