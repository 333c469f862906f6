package resilience

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// SystemHealth is a snapshot of process-wide service degradation, served by
// the readiness endpoint and the session status action.
type SystemHealth struct {
	// Status is "healthy" when no service is degraded, else "degraded".
	Status string `json:"status"`

	// DegradedServices lists the degraded service names, sorted.
	DegradedServices []string `json:"degradedServices,omitempty"`

	// Reasons maps each degraded service to its latest reason.
	Reasons map[string]string `json:"reasons,omitempty"`
}

// degradation is one service's current degraded state.
type degradation struct {
	reason string
	since  time.Time
}

// DegradationManager is the process-wide registry of services currently
// running in a degraded mode (fallback active, breaker open, store
// unreachable). Safe for concurrent use.
type DegradationManager struct {
	mu       sync.Mutex
	degraded map[string]degradation

	now func() time.Time
}

// NewDegradationManager creates an empty registry.
func NewDegradationManager() *DegradationManager {
	return &DegradationManager{
		degraded: make(map[string]degradation),
		now:      time.Now,
	}
}

// MarkDegraded records service as degraded with the given reason. Repeated
// calls update the reason but keep the original start time.
func (m *DegradationManager) MarkDegraded(service, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.degraded[service]; ok {
		d.reason = reason
		m.degraded[service] = d
		return
	}
	m.degraded[service] = degradation{reason: reason, since: m.now()}
	slog.Warn("service degraded", "service", service, "reason", reason)
}

// ClearDegraded removes service from the registry, if present.
func (m *DegradationManager) ClearDegraded(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.degraded[service]; ok {
		delete(m.degraded, service)
		slog.Info("service recovered",
			"service", service,
			"degraded_for", m.now().Sub(d.since).Round(time.Second))
	}
}

// IsDegraded reports whether service is currently marked degraded.
func (m *DegradationManager) IsDegraded(service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.degraded[service]
	return ok
}

// SystemHealth returns the current degradation snapshot.
func (m *DegradationManager) SystemHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.degraded) == 0 {
		return SystemHealth{Status: "healthy"}
	}

	health := SystemHealth{
		Status:  "degraded",
		Reasons: make(map[string]string, len(m.degraded)),
	}
	for service, d := range m.degraded {
		health.DegradedServices = append(health.DegradedServices, service)
		health.Reasons[service] = d.reason
	}
	sort.Strings(health.DegradedServices)
	return health
}
