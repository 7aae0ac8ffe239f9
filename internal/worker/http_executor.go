package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/dbflow/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPExecutor вызывает удалённый воркер по HTTP.
//
// Запрос: POST Endpoint с JSON-телом
//
//	{"task_id": "...", "plan_id": "...", "name": "migrate", "kind": "MIGRATION", "params": {...}}
//
// Ответ 2xx с JSON-объектом становится outputs task. Другой JSON
// кладётся в outputs["body"]. Ответ >= 400 — ошибка (транзиентная).
//
// Params, влияющие на запрос:
//   - timeout_sec (number): таймаут запроса. Default: Timeout или 30s
//   - headers (map[string]any): дополнительные заголовки
type HTTPExecutor struct {
	// Endpoint — URL, принимающий tasks.
	Endpoint string

	// HealthURL — URL для Probe (GET, ожидается 2xx). Пусто — Probe всегда успешен.
	HealthURL string

	// Headers — заголовки для каждого запроса.
	Headers map[string]string

	// Timeout — таймаут запроса по умолчанию.
	Timeout time.Duration

	// Client — HTTP-клиент. nil — http.DefaultClient.
	Client *http.Client
}

// taskRequest — тело запроса к воркеру.
type taskRequest struct {
	TaskID string         `json:"task_id"`
	PlanID string         `json:"plan_id"`
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

// Execute отправляет task воркеру.
func (e *HTTPExecutor) Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
	if e.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrHTTPRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(task.Params, e.timeout()))
	defer cancel()

	body, err := json.Marshal(taskRequest{
		TaskID: task.ID,
		PlanID: task.PlanID.String(),
		Name:   task.Name,
		Kind:   string(task.Kind),
		Params: task.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range e.Headers {
		req.Header.Set(key, val)
	}
	setHeaders(req, task.Params)

	resp, err := e.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	return buildOutputs(resp, respBody), nil
}

// Probe проверяет HealthURL.
func (e *HTTPExecutor) Probe(ctx context.Context) error {
	if e.HealthURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.HealthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}

	resp, err := e.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health HTTP %d", ErrHTTPRequest, resp.StatusCode)
	}
	return nil
}

func (e *HTTPExecutor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *HTTPExecutor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return defaultHTTPTimeout
}

// buildOutputs формирует outputs из HTTP-ответа.
func buildOutputs(resp *http.Response, body []byte) map[string]any {
	var parsed any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed = string(body)
		}
	}

	if obj, ok := parsed.(map[string]any); ok {
		return obj
	}

	outputs := map[string]any{"status_code": resp.StatusCode}
	if parsed != nil {
		outputs["body"] = parsed
	}
	return outputs
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

// getSeconds извлекает длительность в секундах из params.
func getSeconds(params map[string]any, key string, defaultVal time.Duration) time.Duration {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		case int64:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут запроса из params.
func getTimeout(params map[string]any, defaultVal time.Duration) time.Duration {
	return getSeconds(params, "timeout_sec", defaultVal)
}

// setHeaders устанавливает заголовки из params.
func setHeaders(req *http.Request, params map[string]any) {
	headers, ok := params["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
