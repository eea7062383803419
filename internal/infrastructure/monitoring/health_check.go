package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthChecker aggregates named liveness checks and evaluates them on
// demand for the debug endpoint.
type HealthChecker struct {
	log    *zap.SugaredLogger
	mu     sync.RWMutex
	checks []HealthCheck
}

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker(log *zap.SugaredLogger) *HealthChecker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HealthChecker{log: log}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, HealthCheck{Name: name, Check: check, Timeout: timeout})
}

// CheckAll runs every registered check. Any failure makes the whole status
// unhealthy.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(h.checks)),
	}

	for _, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
		err := check.Check(checkCtx)
		cancel()

		if err != nil {
			status.Status = "unhealthy"
			status.Checks[check.Name] = err.Error()
			h.log.Warnw("health check failed", "check", check.Name, "error", err)
			continue
		}
		status.Checks[check.Name] = "healthy"
	}
	return status
}
