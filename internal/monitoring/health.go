package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports engine liveness: the last completed cycle, the
// current risk posture and any sticky errors.
type HealthChecker struct {
	mu            sync.RWMutex
	lastCycle     time.Time
	riskState     string
	staleAfter    time.Duration
	recentErrors  []string
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastCycle time.Time `json:"last_cycle"`
	RiskState string    `json:"risk_state"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker that reports degraded once no
// cycle has completed within staleAfter.
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{staleAfter: staleAfter}
}

// CycleCompleted records a successful cycle and clears sticky errors.
func (h *HealthChecker) CycleCompleted(riskState string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.riskState = riskState
	h.recentErrors = nil
}

// CycleFailed records a failed cycle.
func (h *HealthChecker) CycleFailed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recentErrors = append(h.recentErrors, err.Error())
	if len(h.recentErrors) > 10 {
		h.recentErrors = h.recentErrors[len(h.recentErrors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if h.lastCycle.IsZero() || time.Since(h.lastCycle) > h.staleAfter {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.recentErrors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastCycle: h.lastCycle,
		RiskState: h.riskState,
		Uptime:    time.Since(startTime).String(),
		Errors:    h.recentErrors,
	})
}
