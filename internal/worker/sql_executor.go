package worker

import (
	"context"
	"fmt"
	"maps"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/dbflow/internal/domain"
)

// DB — подмножество pgxpool.Pool, нужное SQLExecutor.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Statement — SQL, который выполняет шаг.
type Statement struct {
	// SQL — текст с плейсхолдерами $1, $2, ...
	SQL string `yaml:"sql" json:"sql"`

	// Args — имена params, подставляемых в плейсхолдеры по порядку.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Query — true, если statement возвращает строки.
	Query bool `yaml:"query,omitempty" json:"query,omitempty"`
}

// SQLExecutor выполняет шаги как SQL statements в PostgreSQL.
//
// Statement выбирается по имени шага (task.Name). Для Query-statements
// outputs содержат rows и row_count; если строка одна, её колонки
// дополнительно копируются в outputs (доступны через {{ .Steps.<name>.Outputs.<col> }}).
type SQLExecutor struct {
	db         DB
	statements map[string]Statement
}

// NewSQLExecutor создаёт SQLExecutor.
func NewSQLExecutor(db DB, statements map[string]Statement) *SQLExecutor {
	return &SQLExecutor{
		db:         db,
		statements: maps.Clone(statements),
	}
}

// Execute выполняет statement шага.
func (e *SQLExecutor) Execute(ctx context.Context, task *domain.WorkflowTask) (map[string]any, error) {
	stmt, ok := e.statements[task.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStatement, task.Name)
	}

	args := make([]any, len(stmt.Args))
	for i, name := range stmt.Args {
		args[i] = task.Params[name]
	}

	if stmt.Query {
		return e.query(ctx, stmt.SQL, args)
	}

	tag, err := e.db.Exec(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSQLExecution, task.Name, err)
	}

	return map[string]any{
		"command":       tag.String(),
		"rows_affected": tag.RowsAffected(),
	}, nil
}

func (e *SQLExecutor) query(ctx context.Context, sql string, args []any) (map[string]any, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSQLExecution, err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%w: collect rows: %v", ErrSQLExecution, err)
	}

	outputs := map[string]any{
		"rows":      collected,
		"row_count": len(collected),
	}
	if len(collected) == 1 {
		for col, val := range collected[0] {
			if _, reserved := outputs[col]; !reserved {
				outputs[col] = val
			}
		}
	}
	return outputs, nil
}

// Probe проверяет соединение с базой.
func (e *SQLExecutor) Probe(ctx context.Context) error {
	return e.db.Ping(ctx)
}
