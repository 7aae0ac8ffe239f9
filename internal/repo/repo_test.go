package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/dbflow/internal/domain"
)

func result(kind domain.OperationKind, status domain.PlanStatus) *domain.PlanResult {
	now := time.Now()
	return &domain.PlanResult{
		PlanID:     uuid.New(),
		Kind:       kind,
		Status:     status,
		Success:    status == domain.PlanStatusSucceeded,
		TotalTasks: 2,
		Completed:  2,
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		ElapsedMs:  1000,
	}
}

func TestMemoryPlanStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPlanStore(0)

	r := result(domain.OperationBackup, domain.PlanStatusSucceeded)
	if err := store.PlanFinished(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, r.PlanID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PlanStatusSucceeded {
		t.Errorf("unexpected status %s", got.Status)
	}

	got.Status = domain.PlanStatusFailed
	again, _ := store.Get(ctx, r.PlanID)
	if again.Status != domain.PlanStatusSucceeded {
		t.Error("Get must return a copy")
	}

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryPlanStore_ListAndEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPlanStore(3)

	saved := []*domain.PlanResult{
		result(domain.OperationBackup, domain.PlanStatusSucceeded),
		result(domain.OperationSync, domain.PlanStatusFailed),
		result(domain.OperationBackup, domain.PlanStatusFailed),
		result(domain.OperationBackup, domain.PlanStatusSucceeded),
	}
	for _, r := range saved {
		if err := store.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := store.Get(ctx, saved[0].PlanID); !errors.Is(err, ErrNotFound) {
		t.Error("oldest result should be evicted")
	}

	all, _ := store.List(ctx, PlanFilter{})
	if len(all) != 3 || all[0].PlanID != saved[3].PlanID {
		t.Errorf("expected newest first, got %d results", len(all))
	}

	backups, _ := store.List(ctx, PlanFilter{Kind: domain.OperationBackup})
	if len(backups) != 2 {
		t.Errorf("expected 2 backups, got %d", len(backups))
	}

	failed, _ := store.List(ctx, PlanFilter{Status: domain.PlanStatusFailed, Limit: 1})
	if len(failed) != 1 || failed[0].PlanID != saved[2].PlanID {
		t.Errorf("unexpected failed list: %+v", failed)
	}

	page, _ := store.List(ctx, PlanFilter{Offset: 1, Limit: 5})
	if len(page) != 2 || page[0].PlanID != saved[2].PlanID {
		t.Errorf("unexpected page: %d results", len(page))
	}

	// Повторное сохранение не дублирует запись
	saved[3].Status = domain.PlanStatusCancelled
	_ = store.Save(ctx, saved[3])
	all, _ = store.List(ctx, PlanFilter{})
	if len(all) != 3 || all[0].Status != domain.PlanStatusCancelled {
		t.Errorf("resave should overwrite, got %d results", len(all))
	}
}

func TestPlanFilter_Normalize(t *testing.T) {
	tests := []struct {
		in   PlanFilter
		want PlanFilter
	}{
		{PlanFilter{}, PlanFilter{Limit: defaultListLimit}},
		{PlanFilter{Limit: 10000, Offset: -5}, PlanFilter{Limit: maxListLimit}},
		{PlanFilter{Limit: 7, Offset: 3}, PlanFilter{Limit: 7, Offset: 3}},
	}
	for _, tt := range tests {
		if got := tt.in.normalize(); got != tt.want {
			t.Errorf("normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

// --- fake pgx ---

type fakeRow struct {
	blob []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.blob
	return nil
}

type fakeRows struct {
	blobs  [][]byte
	pos    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.blobs) {
		r.closed = true
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*[]byte)) = r.blobs[r.pos-1]
	return nil
}

type fakeQuerier struct {
	execSQL  string
	execArgs []any
	row      fakeRow
	rows     *fakeRows
	args     []any
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execSQL, q.execArgs = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (q *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	q.args = args
	return q.rows, nil
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.args = args
	return q.row
}

func TestPlanRepo_Save(t *testing.T) {
	db := &fakeQuerier{}
	repo := NewPlanRepo(db)

	r := result(domain.OperationMigration, domain.PlanStatusTimedOut)
	r.Error = "plan timeout"
	if err := repo.PlanFinished(context.Background(), r); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(db.execArgs) != 12 {
		t.Fatalf("expected 12 args, got %d", len(db.execArgs))
	}
	if db.execArgs[0] != r.PlanID {
		t.Error("first arg should be plan ID")
	}
	if errText, ok := db.execArgs[7].(*string); !ok || *errText != "plan timeout" {
		t.Errorf("unexpected error arg %v", db.execArgs[7])
	}

	var stored domain.PlanResult
	if err := json.Unmarshal(db.execArgs[11].([]byte), &stored); err != nil {
		t.Fatalf("result column is not JSON: %v", err)
	}
	if stored.PlanID != r.PlanID || stored.Status != domain.PlanStatusTimedOut {
		t.Errorf("unexpected stored result %+v", stored)
	}

	r.Error = ""
	_ = repo.Save(context.Background(), r)
	if db.execArgs[7].(*string) != nil {
		t.Error("empty error should be stored as NULL")
	}
}

func TestPlanRepo_Get(t *testing.T) {
	r := result(domain.OperationSync, domain.PlanStatusSucceeded)
	blob, _ := json.Marshal(r)

	repo := NewPlanRepo(&fakeQuerier{row: fakeRow{blob: blob}})
	got, err := repo.Get(context.Background(), r.PlanID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PlanID != r.PlanID || got.Kind != domain.OperationSync {
		t.Errorf("unexpected result %+v", got)
	}

	repo = NewPlanRepo(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}})
	if _, err := repo.Get(context.Background(), r.PlanID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	repo = NewPlanRepo(&fakeQuerier{row: fakeRow{blob: []byte("{broken")}})
	if _, err := repo.Get(context.Background(), r.PlanID); err == nil {
		t.Error("expected decode error")
	}
}

func TestPlanRepo_List(t *testing.T) {
	first := result(domain.OperationBackup, domain.PlanStatusFailed)
	second := result(domain.OperationBackup, domain.PlanStatusFailed)
	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)

	rows := &fakeRows{blobs: [][]byte{b1, b2}}
	db := &fakeQuerier{rows: rows}
	repo := NewPlanRepo(db)

	got, err := repo.List(context.Background(), PlanFilter{Status: domain.PlanStatusFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].PlanID != first.PlanID || got[1].PlanID != second.PlanID {
		t.Errorf("unexpected results %+v", got)
	}
	if !rows.closed {
		t.Error("rows must be closed")
	}

	if db.args[0].(*string) != nil {
		t.Error("empty kind filter should be NULL")
	}
	if status := db.args[1].(*string); status == nil || *status != "FAILED" {
		t.Errorf("unexpected status filter %v", db.args[1])
	}
	if db.args[2] != defaultListLimit {
		t.Errorf("expected default limit, got %v", db.args[2])
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeQuerier{}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	if db.execSQL != schema {
		t.Error("EnsureSchema should execute schema DDL")
	}
}

func TestRequestDedup_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	dedup := NewRequestDedup(client, 0)
	if dedup.ttl != defaultDedupTTL {
		t.Errorf("expected default ttl, got %v", dedup.ttl)
	}

	err := dedup.Claim(context.Background(), "req-1")
	if err == nil || errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected connection error, got %v", err)
	}
	if err := dedup.Release(context.Background(), "req-1"); err == nil {
		t.Error("expected connection error on release")
	}
}
