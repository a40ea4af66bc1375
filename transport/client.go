package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"garantia-push/encryption"
	"garantia-push/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed between reads before the connection is considered dead.
	// The push service pings within this window.
	pongWait = 60 * time.Second

	// Handshake and register replies must arrive within this window
	replyWait = 10 * time.Second

	// Maximum frame size: a 4KB push record plus envelope overhead
	maxMessageSize = 16384
)

var (
	ErrHandshakeFailed = errors.New("push service rejected the hello handshake")
	ErrRegisterFailed  = errors.New("push service rejected the channel registration")
	ErrNotConnected    = errors.New("push service connection is not established")
)

// PushEvent is one delivered push message, already decoded and, when the
// message was encrypted, decrypted. Data is nil for pushes with no payload.
type PushEvent struct {
	ChannelID string
	Version   string
	Data      []byte
}

// Subscription is the locally persisted record of a push channel, including
// the private key material that never leaves the device.
type Subscription struct {
	ChannelID  string
	Endpoint   string
	PrivateKey string
	AuthSecret string
	// ServerKey is the application server key the channel was registered
	// with. A different key on the next registration means the server
	// rotated its VAPID pair and the channel must be recreated.
	ServerKey string
}

// Cache persists the subscription between agent runs.
type Cache interface {
	LoadSubscription() (*Subscription, error)
	SaveSubscription(*Subscription) error
}

// Client maintains the websocket connection to the push service. It is the
// agent-side counterpart of the browser push manager: Subscribe is idempotent
// per server key and incoming notifications are acknowledged after delivery.
type Client struct {
	url   string
	cache Cache

	mu      sync.Mutex
	conn    *websocket.Conn
	uaid    string
	keys    *encryption.Keys
	channel string
	pending map[string]chan RegisterReply

	writeMu sync.Mutex

	events chan PushEvent
}

// NewClient creates a client for the push service at url. Nothing connects
// until Connect or Subscribe is called.
func NewClient(url string, cache Cache) *Client {
	return &Client{
		url:     url,
		cache:   cache,
		pending: make(map[string]chan RegisterReply),
		events:  make(chan PushEvent, 16),
	}
}

// Events is the stream of delivered push messages.
func (c *Client) Events() <-chan PushEvent {
	return c.events
}

// Connect dials the push service and performs the hello handshake. Calling
// it while already connected is a no-op, so it doubles as the "register or
// reuse, then refresh" step of subscription registration.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	// A cached subscription must be announced in the hello so the service
	// re-binds the channel to this connection; otherwise pushes to the cached
	// endpoint keep answering "agent offline" even though the agent considers
	// itself subscribed.
	if c.channel == "" && c.cache != nil {
		if cached, err := c.cache.LoadSubscription(); err == nil && cached != nil {
			if keys, err := encryption.ImportKeys(cached.PrivateKey, cached.AuthSecret); err == nil {
				c.channel = cached.ChannelID
				c.keys = keys
			}
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: replyWait}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	hello := Hello{Type: TypeHello, UAID: c.uaid, UseWebPush: true}
	if c.channel != "" {
		hello.ChannelIDs = []string{c.channel}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return err
	}

	var reply HelloReply
	conn.SetReadDeadline(time.Now().Add(replyWait))
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return err
	}
	if reply.Type != TypeHello || reply.Status != StatusOK {
		conn.Close()
		return ErrHandshakeFailed
	}

	c.uaid = reply.UAID
	c.conn = conn
	go c.readPump(conn)
	return nil
}

// Subscribe registers a push channel for the given application server key and
// returns the resulting subscription. When a cached subscription for the same
// key exists it is reused; a changed key forces a fresh channel with fresh
// key material, invalidating whatever the backend stored before.
func (c *Client) Subscribe(ctx context.Context, serverKey []byte) (*models.PushSubscription, error) {
	encodedKey := base64.RawURLEncoding.EncodeToString(serverKey)

	if cached, err := c.cache.LoadSubscription(); err == nil && cached != nil && cached.ServerKey == encodedKey {
		if keys, err := encryption.ImportKeys(cached.PrivateKey, cached.AuthSecret); err == nil {
			c.setActive(cached.ChannelID, keys)
			return &models.PushSubscription{
				Endpoint: cached.Endpoint,
				P256dh:   keys.P256dh(),
				Auth:     keys.Auth(),
			}, nil
		}
	}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	keys, err := encryption.GenerateKeys()
	if err != nil {
		return nil, err
	}

	channelID := uuid.NewString()
	replyCh := make(chan RegisterReply, 1)
	c.mu.Lock()
	c.pending[channelID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, channelID)
		c.mu.Unlock()
	}()

	if err := c.send(Register{Type: TypeRegister, ChannelID: channelID, Key: encodedKey}); err != nil {
		return nil, err
	}

	var reply RegisterReply
	select {
	case reply = <-replyCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(replyWait):
		return nil, ErrRegisterFailed
	}
	if reply.Status != StatusOK || reply.PushEndpoint == "" {
		return nil, ErrRegisterFailed
	}

	privateKey, authSecret := keys.Export()
	if err := c.cache.SaveSubscription(&Subscription{
		ChannelID:  channelID,
		Endpoint:   reply.PushEndpoint,
		PrivateKey: privateKey,
		AuthSecret: authSecret,
		ServerKey:  encodedKey,
	}); err != nil {
		log.Printf("⚠️ Could not persist push subscription: %v", err)
	}

	c.setActive(channelID, keys)
	return &models.PushSubscription{
		Endpoint: reply.PushEndpoint,
		P256dh:   keys.P256dh(),
		Auth:     keys.Auth(),
	}, nil
}

// Close tears down the connection. Pending events already delivered to the
// Events channel remain readable.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) setActive(channelID string, keys *encryption.Keys) {
	c.mu.Lock()
	c.channel = channelID
	c.keys = keys
	c.mu.Unlock()
}

func (c *Client) send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// readPump pumps frames from the push service until the connection drops.
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ Push service connection lost: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("❌ Error unmarshaling push service frame: %v", err)
			continue
		}

		switch frame.Type {
		case TypeRegister:
			var reply RegisterReply
			if err := json.Unmarshal(raw, &reply); err != nil {
				continue
			}
			c.mu.Lock()
			replyCh := c.pending[reply.ChannelID]
			c.mu.Unlock()
			if replyCh != nil {
				replyCh <- reply
			}

		case TypeNotification:
			var notification Notification
			if err := json.Unmarshal(raw, &notification); err != nil {
				continue
			}
			c.handleNotification(notification)
		}
	}
}

// handleNotification decodes and, if needed, decrypts one delivered message,
// hands it to the worker and acknowledges it.
func (c *Client) handleNotification(n Notification) {
	// ack regardless of the outcome so the service does not redeliver a
	// message we cannot process
	defer func() {
		if err := c.send(Ack{Type: TypeAck, Updates: []AckUpdate{{ChannelID: n.ChannelID, Version: n.Version}}}); err != nil {
			log.Printf("⚠️ Could not ack push %s: %v", n.Version, err)
		}
	}()

	c.mu.Lock()
	keys, channel := c.keys, c.channel
	c.mu.Unlock()
	if n.ChannelID != channel {
		return
	}

	var data []byte
	if n.Data != "" {
		raw, err := encryption.DecodeKey(n.Data)
		if err != nil {
			log.Printf("❌ Undecodable push payload on channel %s", n.ChannelID)
			return
		}
		data = raw
		if n.Headers["encoding"] == "aes128gcm" {
			if keys == nil {
				return
			}
			plain, err := keys.Decrypt(raw)
			if err != nil {
				log.Printf("❌ Could not decrypt push %s: %v", n.Version, err)
				return
			}
			data = plain
		}
	}

	select {
	case c.events <- PushEvent{ChannelID: n.ChannelID, Version: n.Version, Data: data}:
	default:
		log.Printf("⚠️ Push event buffer is full, dropping %s", n.Version)
	}
}
