package monitoring

import (
	"context"
	"sync"
	"time"
)

// HealthChecker aggregates readiness probes for the coordinator's
// dependencies. A check failure marks the process not ready; liveness is
// reported separately by the transport.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []namedCheck
}

type namedCheck struct {
	name    string
	check   func(ctx context.Context) error
	timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check, timeout: timeout})
}

func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.check(checkCtx)
		cancel()

		if err != nil {
			status.Status = "not ready"
			status.Checks[c.name] = err.Error()
		} else {
			status.Checks[c.name] = "ok"
		}
	}

	return status
}
