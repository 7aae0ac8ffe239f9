package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
//
// Если задан LOG_FILE, логи дополнительно пишутся в файл с ротацией
// (LOG_FILE_MAX_SIZE_MB, LOG_FILE_MAX_BACKUPS, LOG_FILE_MAX_AGE_DAYS).
func SetupLogger() *slog.Logger {
	logger := NewLogger(logOutput())
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер с уровнем и форматом из окружения.
func NewLogger(w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// logOutput возвращает stdout или stdout + файл с ротацией.
func logOutput() io.Writer {
	path := os.Getenv("LOG_FILE")
	if path == "" {
		return os.Stdout
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    envInt("LOG_FILE_MAX_SIZE_MB", 100),
		MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 5),
		MaxAge:     envInt("LOG_FILE_MAX_AGE_DAYS", 14),
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file)
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithPlanID возвращает логгер с добавленным plan_id.
func WithPlanID(logger *slog.Logger, planID string) *slog.Logger {
	return logger.With("plan_id", planID)
}

// WithTaskID возвращает логгер с добавленным task_id.
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithWorker возвращает логгер с добавленным типом воркера.
func WithWorker(logger *slog.Logger, workerType string) *slog.Logger {
	return logger.With("worker", workerType)
}
