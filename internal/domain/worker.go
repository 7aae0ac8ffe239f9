package domain

import "time"

// WorkerType — тип специализированного воркера.
type WorkerType string

const (
	WorkerSchema    WorkerType = "schema"
	WorkerBackup    WorkerType = "backup"
	WorkerSync      WorkerType = "sync"
	WorkerCache     WorkerType = "cache"
	WorkerQuery     WorkerType = "query"
	WorkerMonitor   WorkerType = "monitor"
	WorkerIntegrity WorkerType = "integrity"
	WorkerRepair    WorkerType = "repair"
)

// WorkerTypes — все типы воркеров, которые используют шаблоны планов.
var WorkerTypes = []WorkerType{
	WorkerSchema,
	WorkerBackup,
	WorkerSync,
	WorkerCache,
	WorkerQuery,
	WorkerMonitor,
	WorkerIntegrity,
	WorkerRepair,
}

// String возвращает строковое представление WorkerType.
func (w WorkerType) String() string {
	return string(w)
}

// WorkerDescriptor — описание зарегистрированного воркера.
type WorkerDescriptor struct {
	// Type — тип воркера.
	Type WorkerType `json:"type"`

	// Capabilities — что умеет воркер (например, "postgres", "pg_dump").
	Capabilities []string `json:"capabilities,omitempty"`

	// Health — последнее известное состояние здоровья.
	Health Health `json:"health"`

	// HealthMessage — пояснение к состоянию (ошибка последней проверки).
	HealthMessage string `json:"health_message,omitempty"`

	// HealthUpdatedAt — когда состояние обновлялось последний раз.
	HealthUpdatedAt time.Time `json:"health_updated_at"`

	// RegisteredAt — время регистрации.
	RegisteredAt time.Time `json:"registered_at"`
}

// HasCapability проверяет наличие capability.
func (d *WorkerDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
