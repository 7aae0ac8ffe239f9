package api

import (
	"log/slog"

	"github.com/shaiso/dbflow/internal/service"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Service *service.Service
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		svc:    cfg.Service,
		logger: cfg.Logger,
	}
}
