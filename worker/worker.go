// Package worker is the agent's counterpart of the service worker script: it
// runs in the background, independent of any open window, turning delivered
// push messages into OS notifications and routing notification clicks back
// into the application.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"garantia-push/models"
	"garantia-push/platform"
	"garantia-push/transport"
)

// Display defaults, fixed by the application.
const (
	DefaultTitle = "SAT · Garantías"
	DefaultBody  = "Tienes un nuevo mensaje."
	DefaultTag   = "garantia-notification"

	// fallbacks for pushes whose payload is not valid JSON
	FallbackTitle = "SAT"
	FallbackBody  = "Nueva notificación"

	IconPath   = "/logo-aqprox.png"
	AppRootURL = "/"
)

type Worker struct {
	notifications platform.NotificationCenter
	windows       platform.WindowClients

	// inflight is the waitUntil analog: each event handler holds it for the
	// duration of its display or navigation work, and shutdown waits on it
	// so the runtime never abandons a half-handled event.
	inflight sync.WaitGroup
}

func New(notifications platform.NotificationCenter, windows platform.WindowClients) *Worker {
	return &Worker{notifications: notifications, windows: windows}
}

// Run consumes push and click events until ctx is cancelled, then waits for
// in-flight handlers to finish.
func (w *Worker) Run(ctx context.Context, pushes <-chan transport.PushEvent, clicks <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			w.inflight.Wait()
			return
		case push, ok := <-pushes:
			if !ok {
				w.inflight.Wait()
				return
			}
			w.inflight.Add(1)
			go func() {
				defer w.inflight.Done()
				w.handlePush(ctx, push.Data)
			}()
		case clicked := <-clicks:
			w.inflight.Add(1)
			go func() {
				defer w.inflight.Done()
				w.handleClick(ctx, clicked)
			}()
		}
	}
}

// HandlePush processes one push event synchronously; tests inject events
// through it.
func (w *Worker) HandlePush(ctx context.Context, data []byte) {
	w.inflight.Add(1)
	defer w.inflight.Done()
	w.handlePush(ctx, data)
}

// HandleClick processes one notification click synchronously.
func (w *Worker) HandleClick(ctx context.Context, n models.Notification) {
	w.inflight.Add(1)
	defer w.inflight.Done()
	w.handleClick(ctx, n)
}

// Wait blocks until all in-flight event handlers complete.
func (w *Worker) Wait() {
	w.inflight.Wait()
}

func (w *Worker) handlePush(ctx context.Context, data []byte) {
	// a push with no payload shows nothing: never raise a blank notification
	if len(data) == 0 {
		return
	}

	var payload models.NotificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		if json.Valid(data) {
			// valid JSON that is not an object (a bare string or number)
			// parses like an empty payload and takes the defaults
			payload = models.NotificationPayload{}
		} else {
			body := string(data)
			if body == "" {
				body = FallbackBody
			}
			payload = models.NotificationPayload{Title: FallbackTitle, Body: body}
		}
	}

	notification := models.Notification{
		Title:    payload.Title,
		Body:     payload.Body,
		Tag:      payload.Tag,
		Icon:     IconPath,
		Badge:    IconPath,
		Data:     models.NotificationData{URL: AppRootURL, Message: payload.Message},
		Renotify: true,
	}
	if notification.Title == "" {
		notification.Title = DefaultTitle
	}
	if notification.Body == "" {
		notification.Body = DefaultBody
	}
	if notification.Tag == "" {
		notification.Tag = DefaultTag
	}

	if err := w.notifications.Show(ctx, notification); err != nil {
		log.Printf("❌ Could not display notification %q: %v", notification.Tag, err)
	}
}

// handleClick dismisses the notification and brings the app to the
// foreground: focus and redirect the first open window, or open a new one.
func (w *Worker) handleClick(ctx context.Context, n models.Notification) {
	w.notifications.Close(n.Tag)

	url := n.Data.URL
	if url == "" {
		url = AppRootURL
	}

	windows := w.windows.MatchAll(ctx)
	if len(windows) > 0 {
		first := windows[0]
		if err := first.Focus(); err != nil {
			log.Printf("⚠️ Could not focus window: %v", err)
		}
		if err := first.Navigate(url); err != nil {
			log.Printf("⚠️ Could not navigate window: %v", err)
		}
		return
	}

	if err := w.windows.OpenWindow(ctx, url); err != nil {
		log.Printf("⚠️ Could not open window: %v", err)
	}
}
