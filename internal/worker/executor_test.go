package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/dbflow/internal/domain"
)

func newTask(name string, params map[string]any) *domain.WorkflowTask {
	planID := uuid.New()
	return &domain.WorkflowTask{
		ID:         domain.TaskID(planID, name),
		PlanID:     planID,
		Name:       name,
		Kind:       domain.OperationMigration,
		WorkerType: domain.WorkerSchema,
		Params:     params,
	}
}

// --- HTTPExecutor Tests ---

func TestHTTPExecutor_Success(t *testing.T) {
	var received taskRequest
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{"version": "42"})
	}))
	defer server.Close()

	executor := &HTTPExecutor{
		Endpoint: server.URL,
		Headers:  map[string]string{"Authorization": "Bearer token123"},
	}
	task := newTask("migrate", map[string]any{"backup_ref": "s3://b/1"})

	outputs, err := executor.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outputs["version"] != "42" {
		t.Errorf("JSON object should become outputs, got %v", outputs)
	}
	if received.Name != "migrate" || received.TaskID != task.ID {
		t.Errorf("server should receive task identity, got %+v", received)
	}
	if received.Params["backup_ref"] != "s3://b/1" {
		t.Errorf("server should receive params, got %v", received.Params)
	}
	if receivedAuth != "Bearer token123" {
		t.Errorf("expected configured header, got %q", receivedAuth)
	}
}

func TestHTTPExecutor_NonObjectBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("done"))
	}))
	defer server.Close()

	outputs, err := (&HTTPExecutor{Endpoint: server.URL}).Execute(context.Background(), newTask("backup", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["body"] != "done" {
		t.Errorf("expected body=done, got %v", outputs["body"])
	}
	if outputs["status_code"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", outputs["status_code"])
	}
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal"}`))
	}))
	defer server.Close()

	_, err := (&HTTPExecutor{Endpoint: server.URL}).Execute(context.Background(), newTask("migrate", nil))
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	task := newTask("migrate", map[string]any{
		"timeout_sec": 0.1, // 100ms — сервер не успеет ответить
	})

	_, err := (&HTTPExecutor{Endpoint: server.URL}).Execute(context.Background(), task)
	if err == nil {
		t.Error("expected error for timeout")
	}
}

func TestHTTPExecutor_MissingEndpoint(t *testing.T) {
	_, err := (&HTTPExecutor{}).Execute(context.Background(), newTask("migrate", nil))
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestHTTPExecutor_Probe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor := &HTTPExecutor{Endpoint: server.URL, HealthURL: server.URL + "/health"}

	if err := executor.Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	healthy.Store(false)
	if err := executor.Probe(context.Background()); err == nil {
		t.Error("expected error for 503")
	}

	if err := (&HTTPExecutor{}).Probe(context.Background()); err != nil {
		t.Error("probe without HealthURL should succeed")
	}
}

// --- DelayExecutor Tests ---

func TestDelayExecutor_Success(t *testing.T) {
	executor := &DelayExecutor{Outputs: map[string]any{"backup_ref": "local"}}
	task := newTask("backup", map[string]any{
		"duration_sec": 0.05, // 50ms
		"outputs":      map[string]any{"size_mb": 12},
	})

	start := time.Now()
	outputs, err := executor.Execute(context.Background(), task)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["delayed_sec"] != 0.05 {
		t.Errorf("expected delayed_sec=0.05, got %v", outputs["delayed_sec"])
	}
	if outputs["backup_ref"] != "local" || outputs["size_mb"] != 12 {
		t.Errorf("outputs should merge defaults and params, got %v", outputs)
	}
	if elapsed < 40*time.Millisecond {
		t.Error("should have waited at least 40ms")
	}
}

func TestDelayExecutor_ContextCancel(t *testing.T) {
	task := newTask("backup", map[string]any{"duration_sec": 10.0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Отменяем сразу

	_, err := (&DelayExecutor{}).Execute(ctx, task)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- SQLExecutor Tests ---

type fakeDB struct {
	execSQL  string
	execArgs []any
	execErr  error
	pingErr  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = sql
	f.execArgs = args
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("UPDATE 3"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported in fake")
}

func (f *fakeDB) Ping(context.Context) error {
	return f.pingErr
}

func TestSQLExecutor_Exec(t *testing.T) {
	db := &fakeDB{}
	executor := NewSQLExecutor(db, map[string]Statement{
		"migrate": {SQL: "UPDATE schema_version SET version = $1 WHERE db = $2", Args: []string{"version", "database"}},
	})

	outputs, err := executor.Execute(context.Background(), newTask("migrate", map[string]any{
		"version":  "42",
		"database": "lms",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outputs["rows_affected"] != int64(3) {
		t.Errorf("expected rows_affected=3, got %v", outputs["rows_affected"])
	}
	if len(db.execArgs) != 2 || db.execArgs[0] != "42" || db.execArgs[1] != "lms" {
		t.Errorf("args should follow statement order, got %v", db.execArgs)
	}
}

func TestSQLExecutor_Errors(t *testing.T) {
	db := &fakeDB{execErr: errors.New("deadlock detected")}
	executor := NewSQLExecutor(db, map[string]Statement{
		"migrate": {SQL: "SELECT 1"},
	})

	_, err := executor.Execute(context.Background(), newTask("validate-schema", nil))
	if !errors.Is(err, ErrNoStatement) {
		t.Errorf("expected ErrNoStatement, got %v", err)
	}

	_, err = executor.Execute(context.Background(), newTask("migrate", nil))
	if !errors.Is(err, ErrSQLExecution) {
		t.Errorf("expected ErrSQLExecution, got %v", err)
	}

	db.pingErr = errors.New("connection refused")
	if executor.Probe(context.Background()) == nil {
		t.Error("probe should report ping error")
	}
}

// --- RedisExecutor Tests ---

func TestCacheAction(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"cache-invalidate", nil, CacheActionInvalidate},
		{"cache", nil, CacheActionInvalidate},
		{"cache-refresh", nil, CacheActionRefresh},
		{"optimize-cache", nil, CacheActionExpire},
		{"cache-invalidate", map[string]any{"action": "refresh"}, CacheActionRefresh},
	}

	for _, tt := range tests {
		if got := cacheAction(newTask(tt.name, tt.params)); got != tt.want {
			t.Errorf("%s %v: expected %s, got %s", tt.name, tt.params, tt.want, got)
		}
	}
}

func TestRedisExecutor_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	executor := NewRedisExecutor(client, RedisConfig{})

	_, err := executor.Execute(context.Background(), newTask("cache-refresh", nil))
	if !errors.Is(err, ErrCacheOperation) {
		t.Errorf("expected ErrCacheOperation, got %v", err)
	}
	if executor.Probe(context.Background()) == nil {
		t.Error("probe should fail for unreachable redis")
	}

	_, err = executor.Execute(context.Background(), newTask("cache", map[string]any{"action": "flush"}))
	if !errors.Is(err, ErrUnknownCacheAction) {
		t.Errorf("expected ErrUnknownCacheAction, got %v", err)
	}
}

// --- Registry Tests ---

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get(domain.WorkerSchema); !errors.Is(err, ErrUnknownWorkerType) {
		t.Errorf("expected ErrUnknownWorkerType, got %v", err)
	}

	r.Register(domain.WorkerSchema, &DelayExecutor{})
	r.Register(domain.WorkerBackup, ExecutorFunc(func(context.Context, *domain.WorkflowTask) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}))

	if !r.Has(domain.WorkerSchema) {
		t.Error("schema executor should be registered")
	}

	exec, err := r.Get(domain.WorkerBackup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outputs, _ := exec.Execute(context.Background(), newTask("backup", nil))
	if outputs["ok"] != true {
		t.Error("ExecutorFunc should be called")
	}

	types := r.Types()
	if len(types) != 2 || types[0] != domain.WorkerBackup || types[1] != domain.WorkerSchema {
		t.Errorf("expected sorted types [backup schema], got %v", types)
	}

	probers := r.Probers()
	if _, ok := probers[domain.WorkerSchema]; !ok {
		t.Error("DelayExecutor should be exposed as Prober")
	}
	if _, ok := probers[domain.WorkerBackup]; ok {
		t.Error("ExecutorFunc is not a Prober")
	}
}
