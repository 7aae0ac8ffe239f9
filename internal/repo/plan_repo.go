package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/dbflow/internal/domain"
)

// Querier — часть pgxpool.Pool, которую использует PlanRepo.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PlanRepo — результаты планов в PostgreSQL.
//
// Сводные поля лежат в колонках для фильтрации,
// полный PlanResult — в jsonb.
type PlanRepo struct {
	db Querier
}

// NewPlanRepo создаёт новый PlanRepo.
func NewPlanRepo(db Querier) *PlanRepo {
	return &PlanRepo{db: db}
}

// Save сохраняет результат (повторное сохранение перезаписывает).
func (r *PlanRepo) Save(ctx context.Context, result *domain.PlanResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO plan_results (id, kind, status, success, total_tasks, completed, failed,
		                          error, started_at, finished_at, elapsed_ms, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, success = EXCLUDED.success,
		    completed = EXCLUDED.completed, failed = EXCLUDED.failed,
		    error = EXCLUDED.error, finished_at = EXCLUDED.finished_at,
		    elapsed_ms = EXCLUDED.elapsed_ms, result = EXCLUDED.result
	`
	_, err = r.db.Exec(ctx, query,
		result.PlanID,
		result.Kind,
		result.Status,
		result.Success,
		result.TotalTasks,
		result.Completed,
		result.Failed,
		nullString(result.Error),
		result.StartedAt,
		result.FinishedAt,
		result.ElapsedMs,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("insert plan result: %w", err)
	}
	return nil
}

// PlanFinished сохраняет результат завершённого плана.
func (r *PlanRepo) PlanFinished(ctx context.Context, result *domain.PlanResult) error {
	return r.Save(ctx, result)
}

// Get возвращает результат по ID плана.
func (r *PlanRepo) Get(ctx context.Context, id uuid.UUID) (*domain.PlanResult, error) {
	var resultJSON []byte
	err := r.db.QueryRow(ctx, `SELECT result FROM plan_results WHERE id = $1`, id).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan result: %w", err)
	}
	return decodeResult(resultJSON)
}

// List возвращает результаты, новые первыми.
func (r *PlanRepo) List(ctx context.Context, filter PlanFilter) ([]domain.PlanResult, error) {
	filter = filter.normalize()

	query := `
		SELECT result
		FROM plan_results
		WHERE ($1::text IS NULL OR kind = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY finished_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query,
		nullString(string(filter.Kind)),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list plan results: %w", err)
	}

	blobs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan plan results: %w", err)
	}

	results := make([]domain.PlanResult, 0, len(blobs))
	for _, blob := range blobs {
		result, err := decodeResult(blob)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func decodeResult(blob []byte) (*domain.PlanResult, error) {
	var result domain.PlanResult
	if err := json.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("unmarshal plan result: %w", err)
	}
	return &result, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
