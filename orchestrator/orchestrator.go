// Package orchestrator decides, on every trigger, whether to silently
// (re)register the push subscription or to ask the caller to show the
// permission prompt. Triggers are application startup, the app regaining
// focus and a recurring re-validation timer; all three converge on the same
// idempotent registration, so overlapping triggers are harmless.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"garantia-push/models"
	"garantia-push/platform"
	"garantia-push/store"
)

// Registrar runs the subscription registration; its error is logged, never
// propagated.
type Registrar func(ctx context.Context) error

// EnsureResult tells the caller what, if anything, the UI should do. The
// caller must re-check the permission gate before actually showing the
// prompt: Ensure may race with a dismissal from another trigger.
type EnsureResult struct {
	ShowModal bool
}

type Orchestrator struct {
	perms    platform.Permissions
	store    *store.Store
	gate     *store.PermissionGate
	register Registrar
	recheck  time.Duration
	onPrompt func()

	mu            sync.Mutex
	lastCheckedAt time.Time

	resume   chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// New wires an orchestrator. onPrompt is invoked (from the orchestrator's
// goroutine) when a trigger concludes the permission prompt should be shown;
// nil means no UI is attached.
func New(perms platform.Permissions, st *store.Store, register Registrar, recheck time.Duration, onPrompt func()) *Orchestrator {
	return &Orchestrator{
		perms:    perms,
		store:    st,
		gate:     store.NewPermissionGate(st, perms.Supported),
		register: register,
		recheck:  recheck,
		onPrompt: onPrompt,
		resume:   make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Gate exposes the permission gate so the UI layer can re-check it before
// displaying the prompt.
func (o *Orchestrator) Gate() *store.PermissionGate {
	return o.gate
}

// Ensure is the single entry point shared by the startup and resume
// triggers. It never returns an error and never panics: every failure
// degrades to "notifications silently don't work".
func (o *Orchestrator) Ensure(ctx context.Context) EnsureResult {
	if !o.perms.Supported() {
		return EnsureResult{}
	}
	o.touch()

	switch o.perms.Permission() {
	case models.PermissionGranted:
		if err := o.register(ctx); err != nil {
			log.Printf("⚠️ Push registration failed: %v", err)
		}
		return EnsureResult{}
	case models.PermissionDefault:
		return EnsureResult{ShowModal: o.gate.ShouldPrompt()}
	default:
		// denied is terminal: the platform blocks re-requesting
		return EnsureResult{}
	}
}

// EnsureSilent is the lighter-weight timer variant: it only re-registers an
// already granted subscription (recovering from expiry or key rotation) and
// never requests the prompt.
func (o *Orchestrator) EnsureSilent(ctx context.Context) {
	if !o.perms.Supported() {
		return
	}
	o.touch()
	if o.perms.Permission() != models.PermissionGranted {
		return
	}
	if err := o.register(ctx); err != nil {
		log.Printf("⚠️ Silent push re-registration failed: %v", err)
	}
}

// Resume signals that the application regained focus. Non-blocking; a signal
// arriving while one is pending is coalesced.
func (o *Orchestrator) Resume() {
	select {
	case o.resume <- struct{}{}:
	default:
	}
}

// LastChecked reports when any trigger last ran.
func (o *Orchestrator) LastChecked() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCheckedAt
}

// Start launches the background loop serving the resume and timer triggers.
func (o *Orchestrator) Start() {
	go o.run()
	log.Println("🚀 Push subscription orchestrator started")
}

// Stop terminates the background loop. Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopChan) })
	log.Println("🛑 Push subscription orchestrator stopped")
}

func (o *Orchestrator) run() {
	ticker := time.NewTicker(o.recheck)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.withTimeout(o.EnsureSilent)
		case <-o.resume:
			o.withTimeout(func(ctx context.Context) {
				if result := o.Ensure(ctx); result.ShowModal && o.onPrompt != nil {
					o.onPrompt()
				}
			})
		case <-o.stopChan:
			return
		}
	}
}

// withTimeout bounds one trigger's work so a wedged registration cannot
// stall the loop past the next trigger.
func (o *Orchestrator) withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	fn(ctx)
}

func (o *Orchestrator) touch() {
	now := time.Now()
	o.mu.Lock()
	o.lastCheckedAt = now
	o.mu.Unlock()
	if err := o.store.SetLastChecked(now); err != nil {
		log.Printf("⚠️ Could not persist last check time: %v", err)
	}
}
