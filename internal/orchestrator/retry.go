package orchestrator

import "time"

const (
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 30 * time.Second
)

// RetryPolicy — политика повторов упавших tasks.
//
// Задержка перед попыткой n (n >= 1): BaseDelay * 2^(n-1), но не больше MaxDelay.
// Число попыток задаёт сам task (MaxRetries).
type RetryPolicy struct {
	// BaseDelay — задержка перед первым повтором (default: 1s).
	BaseDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration
}

// withDefaults заполняет нулевые поля значениями по умолчанию.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultRetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultRetryMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Backoff возвращает задержку перед повтором номер attempt (с 1).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}
