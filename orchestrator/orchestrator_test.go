package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garantia-push/models"
	"garantia-push/platform"
	"garantia-push/store"
)

// fakePermissions is a stub platform.Permissions with a fixed state.
type fakePermissions struct {
	mu        sync.Mutex
	supported bool
	state     models.PermissionState
	requests  int
}

var _ platform.Permissions = (*fakePermissions)(nil)

func (p *fakePermissions) Supported() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.supported
}

func (p *fakePermissions) Permission() models.PermissionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePermissions) Request(ctx context.Context) (models.PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return p.state, nil
}

type countingRegistrar struct {
	calls atomic.Int32
	err   error
}

func (r *countingRegistrar) register(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func newTestOrchestrator(t *testing.T, perms *fakePermissions, reg *countingRegistrar) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(perms, st, reg.register, time.Hour, nil), st
}

func TestEnsureUnsupported(t *testing.T) {
	perms := &fakePermissions{supported: false, state: models.PermissionGranted}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	result := o.Ensure(context.Background())

	assert.False(t, result.ShowModal)
	assert.Zero(t, reg.calls.Load(), "unsupported platform must stay fully inert")
	assert.True(t, o.LastChecked().IsZero())
}

func TestEnsureGrantedRegisters(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionGranted}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	result := o.Ensure(context.Background())

	assert.False(t, result.ShowModal)
	assert.Equal(t, int32(1), reg.calls.Load())
	assert.False(t, o.LastChecked().IsZero())
}

func TestEnsureGrantedSwallowsRegistrationError(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionGranted}
	reg := &countingRegistrar{err: errors.New("push service unreachable")}
	o, _ := newTestOrchestrator(t, perms, reg)

	result := o.Ensure(context.Background())

	assert.False(t, result.ShowModal)
	assert.Equal(t, int32(1), reg.calls.Load())
}

func TestEnsureDefaultAsksForModal(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionDefault}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	result := o.Ensure(context.Background())

	assert.True(t, result.ShowModal)
	assert.Zero(t, reg.calls.Load())
}

func TestEnsureDefaultAfterAsked(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionDefault}
	reg := &countingRegistrar{}
	o, st := newTestOrchestrator(t, perms, reg)
	require.NoError(t, st.SetAsked(true))

	result := o.Ensure(context.Background())

	assert.False(t, result.ShowModal, "prompt is shown at most once")
	assert.Zero(t, reg.calls.Load())
}

func TestEnsureDeniedIsTerminal(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionDenied}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	result := o.Ensure(context.Background())

	assert.False(t, result.ShowModal)
	assert.Zero(t, reg.calls.Load())
	assert.Zero(t, perms.requests, "denied must never re-request the permission")
}

func TestEnsureSilentOnlyRegistersWhenGranted(t *testing.T) {
	tests := []struct {
		name  string
		state models.PermissionState
		want  int32
	}{
		{"granted re-registers", models.PermissionGranted, 1},
		{"default stays silent", models.PermissionDefault, 0},
		{"denied stays silent", models.PermissionDenied, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := &fakePermissions{supported: true, state: tt.state}
			reg := &countingRegistrar{}
			o, _ := newTestOrchestrator(t, perms, reg)

			o.EnsureSilent(context.Background())

			assert.Equal(t, tt.want, reg.calls.Load())
		})
	}
}

func TestEnsurePersistsLastChecked(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionDefault}
	reg := &countingRegistrar{}
	o, st := newTestOrchestrator(t, perms, reg)

	o.Ensure(context.Background())

	persisted, err := st.LastChecked()
	require.NoError(t, err)
	assert.False(t, persisted.IsZero())
	assert.WithinDuration(t, o.LastChecked(), persisted, time.Second)
}

func TestConcurrentEnsureIsSafe(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionGranted}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Ensure(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), reg.calls.Load())
}

func TestResumeTriggersEnsureAndPrompt(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionDefault}
	reg := &countingRegistrar{}
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	prompted := make(chan struct{}, 1)
	o := New(perms, st, reg.register, time.Hour, func() {
		prompted <- struct{}{}
	})
	o.Start()
	defer o.Stop()

	o.Resume()

	select {
	case <-prompted:
	case <-time.After(time.Second):
		t.Fatal("resume trigger did not ask for the prompt")
	}
}

func TestResumeCoalesces(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionGranted}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	// not started: signals queue in the buffered channel without blocking
	for i := 0; i < 5; i++ {
		o.Resume()
	}
}

func TestStopIsIdempotent(t *testing.T) {
	perms := &fakePermissions{supported: true, state: models.PermissionGranted}
	reg := &countingRegistrar{}
	o, _ := newTestOrchestrator(t, perms, reg)

	o.Start()
	o.Stop()
	o.Stop()
}
