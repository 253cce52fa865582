package handler

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker reports whether a long-lived connection is up.
type ConnChecker interface {
	IsConnected() bool
}

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// PingCheck checks a Pinger.
func PingCheck(p Pinger) Check {
	return p.Ping
}

// ConnCheck checks a ConnChecker.
func ConnCheck(c ConnChecker) Check {
	return func(context.Context) error {
		if !c.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}
}

type namedCheck struct {
	name  string
	check Check
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks []namedCheck
}

// NewHealthHandler creates a health handler with no readiness checks.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// AddCheck registers a readiness check. Checks run in registration order.
func (h *HealthHandler) AddCheck(name string, c Check) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, check: c})
	return h
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.name] = err.Error()
			continue
		}
		results[c.name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}
