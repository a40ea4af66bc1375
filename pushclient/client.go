// Package pushclient registers the web push subscription with the backend:
// it fetches the server's VAPID public key, creates a platform subscription
// with it and posts the result to the subscribe endpoint. The whole operation
// is fire-and-forget; callers ignore its error.
package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"garantia-push/encryption"
	"garantia-push/models"
	"garantia-push/platform"
)

var ErrSubscribeRejected = errors.New("backend rejected the subscription")

// PushManager creates platform push subscriptions. Connect is the "register
// or reuse the service worker, then refresh" step; Subscribe yields at most
// one active subscription per agent.
type PushManager interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, serverKey []byte) (*models.PushSubscription, error)
}

type Client struct {
	apiURL  string
	http    *http.Client
	token   func() string
	perms   platform.Permissions
	manager PushManager
}

// NewClient builds a subscription client. token supplies the current session
// bearer token, empty when signed out. The HTTP timeout bounds both backend
// calls so no trigger can hang on a dead network.
func NewClient(apiURL string, timeout time.Duration, token func() string, perms platform.Permissions, manager PushManager) *Client {
	return &Client{
		apiURL:  apiURL,
		http:    &http.Client{Timeout: timeout},
		token:   token,
		perms:   perms,
		manager: manager,
	}
}

// Register runs the full registration sequence. It is a no-op unless push is
// supported and the permission is granted, it is safe to call repeatedly, and
// a missing server key (push not configured) resolves silently. Callers are
// expected to ignore the returned error; it exists for logging.
func (c *Client) Register(ctx context.Context) error {
	if !c.perms.Supported() || c.perms.Permission() != models.PermissionGranted {
		return nil
	}

	if err := c.manager.Connect(ctx); err != nil {
		return fmt.Errorf("connecting push manager: %w", err)
	}

	key, err := c.fetchVAPIDKey(ctx)
	if err != nil {
		return fmt.Errorf("fetching vapid key: %w", err)
	}
	if key == "" {
		// server push not configured: a valid state, not an error
		return nil
	}

	serverKey, err := encryption.DecodeKey(key)
	if err != nil {
		return fmt.Errorf("decoding vapid key: %w", err)
	}

	subscription, err := c.manager.Subscribe(ctx, serverKey)
	if err != nil {
		return fmt.Errorf("creating platform subscription: %w", err)
	}

	if err := c.postSubscription(ctx, subscription); err != nil {
		return fmt.Errorf("registering subscription: %w", err)
	}
	return nil
}

// fetchVAPIDKey asks the backend for its current public key. A non-OK
// response or an absent key both read as "no key": the caller skips
// registration without treating it as a failure.
func (c *Client) fetchVAPIDKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/api/push/vapid-public", nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", nil
	}

	var body models.VAPIDKeyResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.PublicKey == nil {
		return "", nil
	}
	return *body.PublicKey, nil
}

func (c *Client) postSubscription(ctx context.Context, subscription *models.PushSubscription) error {
	payload, err := json.Marshal(models.SubscribeRequest{
		Endpoint: subscription.Endpoint,
		Keys:     subscription.Keys(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/push/subscribe", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ErrSubscribeRejected
	}
	return nil
}

// authorize attaches the session bearer token if one exists; without it the
// request goes out unauthenticated and the backend answers 401.
func (c *Client) authorize(req *http.Request) {
	if c.token == nil {
		return
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
