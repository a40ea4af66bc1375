package pushclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garantia-push/models"
)

// fakePerms is a fixed-state platform.Permissions.
type fakePerms struct {
	supported bool
	state     models.PermissionState
}

func (p *fakePerms) Supported() bool                  { return p.supported }
func (p *fakePerms) Permission() models.PermissionState { return p.state }
func (p *fakePerms) Request(ctx context.Context) (models.PermissionState, error) {
	return p.state, nil
}

// fakeManager hands out a fixed subscription and records calls.
type fakeManager struct {
	mu         sync.Mutex
	connects   int
	subscribes int
	serverKey  []byte
	sub        *models.PushSubscription
	err        error
}

func (m *fakeManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	return nil
}

func (m *fakeManager) Subscribe(ctx context.Context, serverKey []byte) (*models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribes++
	m.serverKey = serverKey
	if m.err != nil {
		return nil, m.err
	}
	return m.sub, nil
}

// backend is a scripted stand-in for the API server.
type backend struct {
	mu          sync.Mutex
	vapidStatus int
	vapidKey    *string
	subscribes  []models.SubscribeRequest
	authHeaders []string
	server      *httptest.Server
}

func newBackend(t *testing.T, vapidStatus int, vapidKey *string) *backend {
	t.Helper()
	b := &backend{vapidStatus: vapidStatus, vapidKey: vapidKey}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/push/vapid-public", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.vapidStatus)
		if b.vapidStatus == http.StatusOK {
			json.NewEncoder(w).Encode(models.VAPIDKeyResponse{PublicKey: b.vapidKey})
		}
	})
	mux.HandleFunc("/api/push/subscribe", func(w http.ResponseWriter, r *http.Request) {
		var req models.SubscribeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		b.mu.Lock()
		b.subscribes = append(b.subscribes, req)
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) subscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribes)
}

func str(s string) *string { return &s }

var testServerKey = base64.RawURLEncoding.EncodeToString([]byte("server-key-bytes"))

func testSubscription() *models.PushSubscription {
	return &models.PushSubscription{
		Endpoint: "http://localhost:8080/push/chan-1",
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
	}
}

func TestRegisterHappyPath(t *testing.T) {
	b := newBackend(t, http.StatusOK, str(testServerKey))
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(b.server.URL, 10*time.Second, func() string { return "tok-1" }, perms, manager)
	require.NoError(t, c.Register(context.Background()))

	assert.Equal(t, 1, manager.connects)
	assert.Equal(t, 1, manager.subscribes)
	assert.Equal(t, []byte("server-key-bytes"), manager.serverKey)

	require.Equal(t, 1, b.subscribeCount())
	assert.Equal(t, "http://localhost:8080/push/chan-1", b.subscribes[0].Endpoint)
	assert.Equal(t, "p256dh-key", b.subscribes[0].Keys.P256dh)
	assert.Equal(t, "auth-secret", b.subscribes[0].Keys.Auth)
	for _, h := range b.authHeaders {
		assert.Equal(t, "Bearer tok-1", h)
	}
}

func TestRegisterSkipsWithoutGrantedPermission(t *testing.T) {
	tests := []struct {
		name  string
		perms *fakePerms
	}{
		{"unsupported", &fakePerms{supported: false, state: models.PermissionGranted}},
		{"permission default", &fakePerms{supported: true, state: models.PermissionDefault}},
		{"permission denied", &fakePerms{supported: true, state: models.PermissionDenied}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t, http.StatusOK, str(testServerKey))
			manager := &fakeManager{sub: testSubscription()}

			c := NewClient(b.server.URL, 10*time.Second, nil, tt.perms, manager)
			require.NoError(t, c.Register(context.Background()))

			assert.Zero(t, manager.connects, "no platform work without permission")
			assert.Zero(t, b.subscribeCount())
		})
	}
}

func TestRegisterNullServerKeyResolvesSilently(t *testing.T) {
	b := newBackend(t, http.StatusOK, nil)
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(b.server.URL, 10*time.Second, nil, perms, manager)
	require.NoError(t, c.Register(context.Background()))

	assert.Zero(t, manager.subscribes)
	assert.Zero(t, b.subscribeCount())
}

func TestRegisterKeyEndpointErrorResolvesSilently(t *testing.T) {
	b := newBackend(t, http.StatusNotFound, nil)
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(b.server.URL, 10*time.Second, nil, perms, manager)
	require.NoError(t, c.Register(context.Background()))

	assert.Zero(t, manager.subscribes)
}

func TestRegisterIsRepeatable(t *testing.T) {
	b := newBackend(t, http.StatusOK, str(testServerKey))
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(b.server.URL, 10*time.Second, nil, perms, manager)
	require.NoError(t, c.Register(context.Background()))
	require.NoError(t, c.Register(context.Background()))

	// both runs post the same endpoint; the backend upserts, never duplicates
	require.Equal(t, 2, b.subscribeCount())
	assert.Equal(t, b.subscribes[0].Endpoint, b.subscribes[1].Endpoint)
}

func TestRegisterUnauthenticatedOmitsHeader(t *testing.T) {
	b := newBackend(t, http.StatusOK, str(testServerKey))
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(b.server.URL, 10*time.Second, func() string { return "" }, perms, manager)
	require.NoError(t, c.Register(context.Background()))

	for _, h := range b.authHeaders {
		assert.Empty(t, h)
	}
}

func TestRegisterBackendRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/push/vapid-public", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.VAPIDKeyResponse{PublicKey: str(testServerKey)})
	})
	mux.HandleFunc("/api/push/subscribe", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient(server.URL, 10*time.Second, nil, perms, manager)
	err := c.Register(context.Background())
	assert.ErrorIs(t, err, ErrSubscribeRejected)
}

func TestRegisterUnreachableBackend(t *testing.T) {
	manager := &fakeManager{sub: testSubscription()}
	perms := &fakePerms{supported: true, state: models.PermissionGranted}

	c := NewClient("http://127.0.0.1:1", time.Second, nil, perms, manager)
	err := c.Register(context.Background())
	assert.Error(t, err, "callers log and ignore this")
}
