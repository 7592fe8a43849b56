package tapwatch

import (
	"fmt"
	"time"
)

// HealthStatus represents the overall health state of a component.
type HealthStatus string

const (
	// HealthOK indicates the component is functioning normally.
	HealthOK HealthStatus = "ok"
	// HealthDegraded indicates partial functionality or non-critical issues.
	HealthDegraded HealthStatus = "degraded"
	// HealthUnhealthy indicates the component is not functioning.
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck contains the health status of the instance and its components.
type HealthCheck struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Message    string                     `json:"message"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

// IsHealthy returns true if the overall status is HealthOK.
func (h HealthCheck) IsHealthy() bool {
	return h.Status == HealthOK
}

// IsDegraded returns true if the overall status is HealthDegraded.
func (h HealthCheck) IsDegraded() bool {
	return h.Status == HealthDegraded
}

// IsUnhealthy returns true if the overall status is HealthUnhealthy.
func (h HealthCheck) IsUnhealthy() bool {
	return h.Status == HealthUnhealthy
}

// Health returns a health check result for the instance.
func (w *instance) Health() HealthCheck {
	now := time.Now()
	components := make(map[string]ComponentHealth)
	running := w.running.Load()

	var uptime time.Duration
	w.mu.RLock()
	if running && !w.startTime.IsZero() {
		uptime = now.Sub(w.startTime)
	}
	session := w.session
	w.mu.RUnlock()

	if running {
		snap := w.metrics.Snapshot()
		components["monitor"] = ComponentHealth{
			Status:      HealthOK,
			Message:     fmt.Sprintf("Polling, %d cycles completed", snap.Cycles),
			LastUpdated: now,
		}
	} else {
		components["monitor"] = ComponentHealth{
			Status:      HealthUnhealthy,
			Message:     "Polling is stopped",
			LastUpdated: now,
		}
	}

	switch {
	case session == nil:
		components["shell"] = ComponentHealth{Status: HealthOK, Message: "Privileged shell not managed", LastUpdated: now}
	case session.Stats().Failures > 0 && !session.Alive():
		st := session.Stats()
		components["shell"] = ComponentHealth{
			Status:      HealthDegraded,
			Message:     fmt.Sprintf("Privileged shell down after %d failures", st.Failures),
			LastUpdated: now,
		}
	default:
		st := session.Stats()
		components["shell"] = ComponentHealth{
			Status:      HealthOK,
			Message:     fmt.Sprintf("%d commands, %d spawns", st.Commands, st.Spawns),
			LastUpdated: now,
		}
	}

	if v, ok := w.latest.Latest(); ok {
		status, msg := HealthOK, v.Interface+" is up"
		switch {
		case !v.Exists:
			status, msg = HealthDegraded, v.Interface+" does not exist"
		case !v.Active():
			status, msg = HealthDegraded, v.Interface+" is down"
		}
		components["interface"] = ComponentHealth{Status: status, Message: msg, LastUpdated: v.Timestamp}
	}

	lastErr := w.getError()
	if lastErr != nil {
		components["errors"] = ComponentHealth{Status: HealthDegraded, Message: lastErr.Error(), LastUpdated: now}
	} else {
		components["errors"] = ComponentHealth{Status: HealthOK, Message: "No recent errors", LastUpdated: now}
	}

	overallStatus := HealthOK
	message := "All components healthy"
	switch {
	case !running:
		overallStatus = HealthUnhealthy
		message = "Instance is not running"
	case lastErr != nil:
		overallStatus = HealthDegraded
		message = "Running with recent errors"
	}

	return HealthCheck{
		Status:     overallStatus,
		Timestamp:  now,
		Uptime:     uptime,
		Components: components,
		Message:    message,
	}
}
