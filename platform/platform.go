// Package platform abstracts what the browser owns in the original system:
// the notification permission, the notification display surface and the set
// of open application windows. Components depend on these interfaces so tests
// can drive them with synthetic state.
package platform

import (
	"context"

	"garantia-push/models"
)

// Permissions exposes the platform notification permission. The app reads it
// and may change it once through Request, which shows the platform's own
// permission dialog.
type Permissions interface {
	// Supported reports whether push is available at all.
	Supported() bool
	Permission() models.PermissionState
	Request(ctx context.Context) (models.PermissionState, error)
}

// NotificationCenter displays OS-level notifications. Showing a notification
// whose tag matches a visible one replaces it instead of stacking.
type NotificationCenter interface {
	Show(ctx context.Context, n models.Notification) error
	Close(tag string)
}

// Window is one open application window.
type Window interface {
	Focus() error
	Navigate(url string) error
}

// WindowClients enumerates and opens application windows, the counterpart of
// the service worker clients API.
type WindowClients interface {
	MatchAll(ctx context.Context) []Window
	OpenWindow(ctx context.Context, url string) error
}
