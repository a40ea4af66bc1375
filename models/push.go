package models

import (
	"time"

	"gorm.io/gorm"
)

// PermissionState mirrors the platform notification permission. It is owned
// by the platform: the app only reads it, and may change it through a single
// user-facing permission request.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// SubscriptionKeys are the client half of a web push subscription: the
// uncompressed P-256 public point (p256dh) and the 16-byte auth secret,
// both base64url encoded without padding.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a registered web push subscription. On the server it is
// persisted with the endpoint as the upsert key: re-subscribing from the same
// client overwrites the stored record instead of duplicating it.
type PushSubscription struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index"`
	Endpoint  string         `json:"endpoint" gorm:"not null;uniqueIndex"`
	P256dh    string         `json:"p256dh" gorm:"not null"`
	Auth      string         `json:"auth" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// Keys returns the wire form of the subscription keys.
func (s *PushSubscription) Keys() SubscriptionKeys {
	return SubscriptionKeys{P256dh: s.P256dh, Auth: s.Auth}
}

// SubscribeRequest is the body POSTed to /api/push/subscribe.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint" binding:"required"`
	Keys     SubscriptionKeys `json:"keys" binding:"required"`
}

// VAPIDKeyResponse is the body of GET /api/push/vapid-public. A null key
// means the server has no push configured, which is a valid state, not an
// error.
type VAPIDKeyResponse struct {
	PublicKey *string `json:"publicKey"`
}

// NotificationPayload is the structured data carried by a push message.
// Every field is optional; the worker fills in fixed defaults.
type NotificationPayload struct {
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message,omitempty"`
}

// NotificationData is the app-level payload attached to a displayed
// notification so the click handler knows where to route.
type NotificationData struct {
	URL     string `json:"url"`
	Message string `json:"message,omitempty"`
}

// Notification is a resolved, displayable notification. Two notifications
// sharing a Tag coalesce: the later one replaces the earlier one on screen.
type Notification struct {
	Title    string           `json:"title"`
	Body     string           `json:"body"`
	Tag      string           `json:"tag"`
	Icon     string           `json:"icon"`
	Badge    string           `json:"badge"`
	Data     NotificationData `json:"data"`
	Renotify bool             `json:"renotify"`
}
