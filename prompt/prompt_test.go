package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garantia-push/models"
	"garantia-push/platform"
	"garantia-push/store"
)

type fixture struct {
	prompt    *Prompt
	store     *store.Store
	perms     *platform.StorePermissions
	registers int
}

// newFixture builds a prompt over a real in-memory store, with the decision
// function answering as given.
func newFixture(t *testing.T, decision models.PermissionState) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st}
	supported := func() bool { return true }
	f.perms = platform.NewStorePermissions(st, supported, func(ctx context.Context) models.PermissionState {
		return decision
	})
	gate := store.NewPermissionGate(st, supported)
	f.prompt = New(gate, f.perms, func(ctx context.Context) error {
		f.registers++
		return nil
	})
	return f
}

func TestShouldShowOnFreshInstall(t *testing.T) {
	f := newFixture(t, models.PermissionGranted)
	assert.True(t, f.prompt.ShouldShow())
}

func TestAcceptGrantedRegistersAndMarksAsked(t *testing.T) {
	f := newFixture(t, models.PermissionGranted)

	f.prompt.Accept(context.Background())

	assert.Equal(t, 1, f.registers)
	assert.Equal(t, models.PermissionGranted, f.perms.Permission())

	asked, err := f.store.Asked()
	require.NoError(t, err)
	assert.True(t, asked)
	assert.False(t, f.prompt.ShouldShow(), "prompt never shows twice")
}

func TestAcceptDeniedMarksAskedWithoutRegistering(t *testing.T) {
	f := newFixture(t, models.PermissionDenied)

	f.prompt.Accept(context.Background())

	assert.Zero(t, f.registers)
	assert.Equal(t, models.PermissionDenied, f.perms.Permission())
	assert.False(t, f.prompt.ShouldShow())
}

func TestAcceptDismissedRequestLeavesDefault(t *testing.T) {
	// the user closed the native permission dialog without deciding
	f := newFixture(t, models.PermissionDefault)

	f.prompt.Accept(context.Background())

	assert.Zero(t, f.registers)
	assert.Equal(t, models.PermissionDefault, f.perms.Permission())
	assert.False(t, f.prompt.ShouldShow(), "asked flag still set")
}

func TestDeclineNeverRequestsPermission(t *testing.T) {
	requested := false
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	supported := func() bool { return true }
	perms := platform.NewStorePermissions(st, supported, func(ctx context.Context) models.PermissionState {
		requested = true
		return models.PermissionGranted
	})
	p := New(store.NewPermissionGate(st, supported), perms, func(ctx context.Context) error {
		t.Fatal("decline must not register")
		return nil
	})

	p.Decline()

	assert.False(t, requested)
	assert.Equal(t, models.PermissionDefault, perms.Permission())
	assert.False(t, p.ShouldShow())
}

func TestAcceptSkipsRequestOnceDecided(t *testing.T) {
	f := newFixture(t, models.PermissionGranted)
	require.NoError(t, f.store.SetPermission(models.PermissionGranted))

	f.prompt.Accept(context.Background())

	// permission was already granted, so only registration runs
	assert.Equal(t, 1, f.registers)
}
