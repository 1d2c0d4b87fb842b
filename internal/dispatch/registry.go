// Package dispatch orchestrates alert delivery: the cancellable dispatch
// window, the channel fan-out and the reminder loop that re-drives
// unconfirmed mandatory alerts.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/khlayyel/alertsystem/pkg/models"
)

// pendingAlert tracks one alert inside its cancellation window. The decided
// flag is the race arbiter between the cancel path and the window expiry:
// whichever side wins the compare-and-swap owns the outcome, so an alert is
// never both cancelled and sent.
type pendingAlert struct {
	cancel  context.CancelFunc
	decided atomic.Bool
}

// claim attempts to take ownership of the alert's outcome.
func (p *pendingAlert) claim() bool {
	return p.decided.CompareAndSwap(false, true)
}

// Registry tracks in-flight delayed sends by alert id. It is owned by one
// Coordinator instance and injected where needed; there is no process-wide
// shared map.
type Registry struct {
	mu      sync.Mutex
	pending map[models.AlertID]*pendingAlert
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[models.AlertID]*pendingAlert)}
}

// add registers a pending alert. Returns false if the alert already has an
// open window.
func (r *Registry) add(alertID models.AlertID, cancel context.CancelFunc) (*pendingAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[alertID]; exists {
		return nil, false
	}
	p := &pendingAlert{cancel: cancel}
	r.pending[alertID] = p
	return p, true
}

// remove drops the alert's entry once its task has terminated.
func (r *Registry) remove(alertID models.AlertID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, alertID)
}

// Cancel signals the alert's delayed task to abort. It reports whether a
// still-undecided window was found; false means the alert already progressed
// past cancellation, which is a normal negative result.
func (r *Registry) Cancel(alertID models.AlertID) bool {
	r.mu.Lock()
	p, ok := r.pending[alertID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if !p.claim() {
		return false
	}
	p.cancel()
	return true
}

// IsPending reports whether the alert is still inside its cancellation
// window.
func (r *Registry) IsPending(alertID models.AlertID) bool {
	r.mu.Lock()
	p, ok := r.pending[alertID]
	r.mu.Unlock()
	return ok && !p.decided.Load()
}
