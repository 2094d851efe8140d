package signaling

import (
	"sync"

	"voxhub/internal/domain"
	"voxhub/internal/sfu"
)

// DeferredNotifier breaks the construction cycle between sfu.Router
// (which needs a Notifier up front) and Server (which needs the already-
// built Router): construct one, hand it to sfu.New, then Bind it to the
// Server once that exists. Events routed before Bind are impossible in
// practice — nothing can be listening on a router with no attached
// connections — but are dropped rather than panicking, just in case.
type DeferredNotifier struct {
	mu     sync.RWMutex
	target sfu.Notifier
}

// NewDeferredNotifier constructs an unbound notifier.
func NewDeferredNotifier() *DeferredNotifier {
	return &DeferredNotifier{}
}

// Bind attaches the real notifier. Call exactly once, before any client
// traffic can reach the router.
func (d *DeferredNotifier) Bind(target sfu.Notifier) {
	d.mu.Lock()
	d.target = target
	d.mu.Unlock()
}

// Notify implements sfu.Notifier.
func (d *DeferredNotifier) Notify(to domain.ParticipantID, event sfu.Event) {
	d.mu.RLock()
	target := d.target
	d.mu.RUnlock()
	if target == nil {
		return
	}
	target.Notify(to, event)
}
