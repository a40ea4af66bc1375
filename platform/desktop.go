package platform

import (
	"context"
	"log"
	"sync"

	"garantia-push/models"
	"garantia-push/store"
)

// StorePermissions keeps the permission record in the agent state store,
// standing in for the browser-owned Notification.permission. Request runs the
// injected decision function (a terminal dialog on the desktop agent, a stub
// in tests) and persists the outcome.
type StorePermissions struct {
	store     *store.Store
	supported func() bool
	decide    func(ctx context.Context) models.PermissionState
}

func NewStorePermissions(s *store.Store, supported func() bool, decide func(ctx context.Context) models.PermissionState) *StorePermissions {
	return &StorePermissions{store: s, supported: supported, decide: decide}
}

func (p *StorePermissions) Supported() bool {
	return p.supported != nil && p.supported()
}

func (p *StorePermissions) Permission() models.PermissionState {
	permission, err := p.store.Permission()
	if err != nil {
		return models.PermissionDefault
	}
	return permission
}

// Request asks the user and records their decision. Once the permission has
// left "default" the platform never re-asks; the recorded state is returned
// as-is.
func (p *StorePermissions) Request(ctx context.Context) (models.PermissionState, error) {
	current := p.Permission()
	if current != models.PermissionDefault {
		return current, nil
	}
	result := models.PermissionDefault
	if p.decide != nil {
		result = p.decide(ctx)
	}
	if result != models.PermissionDefault {
		if err := p.store.SetPermission(result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// MemoryNotificationCenter is the agent's notification display: it keeps the
// currently visible notifications in memory, enforcing the tag-coalescing
// contract, and surfaces clicks as a channel the worker consumes.
type MemoryNotificationCenter struct {
	mu      sync.Mutex
	visible map[string]models.Notification
	clicks  chan models.Notification
}

func NewMemoryNotificationCenter() *MemoryNotificationCenter {
	return &MemoryNotificationCenter{
		visible: make(map[string]models.Notification),
		clicks:  make(chan models.Notification, 8),
	}
}

func (c *MemoryNotificationCenter) Show(ctx context.Context, n models.Notification) error {
	c.mu.Lock()
	_, replacing := c.visible[n.Tag]
	c.visible[n.Tag] = n
	c.mu.Unlock()
	if replacing {
		log.Printf("🔔 %s — %s (replaces previous %q)", n.Title, n.Body, n.Tag)
	} else {
		log.Printf("🔔 %s — %s", n.Title, n.Body)
	}
	return nil
}

func (c *MemoryNotificationCenter) Close(tag string) {
	c.mu.Lock()
	delete(c.visible, tag)
	c.mu.Unlock()
}

// Visible returns the currently displayed notifications.
func (c *MemoryNotificationCenter) Visible() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Notification, 0, len(c.visible))
	for _, n := range c.visible {
		out = append(out, n)
	}
	return out
}

// Click simulates the user clicking the visible notification with the given
// tag. It reports whether such a notification existed.
func (c *MemoryNotificationCenter) Click(tag string) bool {
	c.mu.Lock()
	n, ok := c.visible[tag]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case c.clicks <- n:
	default:
		log.Printf("⚠️ Click buffer is full, dropping click on %q", tag)
	}
	return true
}

// Clicks is the stream of clicked notifications.
func (c *MemoryNotificationCenter) Clicks() <-chan models.Notification {
	return c.clicks
}

// MemoryWindowClients tracks the application windows this agent opened. The
// optional launcher actually opens the URL (xdg-open on the desktop agent).
type MemoryWindowClients struct {
	mu       sync.Mutex
	windows  []*MemoryWindow
	launcher func(url string) error
}

func NewMemoryWindowClients(launcher func(url string) error) *MemoryWindowClients {
	return &MemoryWindowClients{launcher: launcher}
}

func (w *MemoryWindowClients) MatchAll(ctx context.Context) []Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Window, len(w.windows))
	for i, win := range w.windows {
		out[i] = win
	}
	return out
}

func (w *MemoryWindowClients) OpenWindow(ctx context.Context, url string) error {
	if w.launcher != nil {
		if err := w.launcher(url); err != nil {
			return err
		}
	}
	w.mu.Lock()
	w.windows = append(w.windows, &MemoryWindow{URL: url, launcher: w.launcher})
	w.mu.Unlock()
	return nil
}

// MemoryWindow records what the click handler did with it.
type MemoryWindow struct {
	mu       sync.Mutex
	URL      string
	Focused  bool
	launcher func(url string) error
}

func (w *MemoryWindow) Focus() error {
	w.mu.Lock()
	w.Focused = true
	w.mu.Unlock()
	return nil
}

func (w *MemoryWindow) Navigate(url string) error {
	w.mu.Lock()
	w.URL = url
	w.mu.Unlock()
	if w.launcher != nil {
		return w.launcher(url)
	}
	return nil
}
