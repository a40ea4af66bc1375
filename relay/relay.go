// Package relay is a development push service: agents connect over websocket
// and register channels, application servers POST (encrypted) messages to the
// per-channel endpoint, and the relay forwards them as notification frames.
// It stands in for the platform push service the production system talks to.
package relay

import (
	"encoding/base64"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"garantia-push/transport"
)

// Relay tracks connected agents and their registered channels. Channels
// survive a disconnect: a push to a known but offline channel is accepted by
// contract but reported unavailable, while an unknown channel answers Gone so
// senders prune the stale subscription.
type Relay struct {
	baseURL string

	mu       sync.RWMutex
	sessions map[string]*session // uaid -> live connection
	channels map[string]string   // channelID -> uaid
}

func New(baseURL string) *Relay {
	return &Relay{
		baseURL:  baseURL,
		sessions: make(map[string]*session),
		channels: make(map[string]string),
	}
}

// HandleWS upgrades an agent connection and serves the push protocol on it.
func (r *Relay) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	serveSession(r, conn)
}

// HandlePush accepts one push message for a channel and forwards it to the
// owning agent. The body is passed through opaquely; the Content-Encoding
// header tells the agent whether it is aes128gcm.
func (r *Relay) HandlePush(c *gin.Context) {
	channelID := c.Param("channelID")

	r.mu.RLock()
	uaid, known := r.channels[channelID]
	session := r.sessions[uaid]
	r.mu.RUnlock()

	if !known {
		c.JSON(http.StatusGone, gin.H{"error": "Unknown channel"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Agent is offline"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	frame := transport.Notification{
		Type:      transport.TypeNotification,
		ChannelID: channelID,
		Version:   uuid.NewString(),
	}
	if len(body) > 0 {
		frame.Data = base64.RawURLEncoding.EncodeToString(body)
		if encoding := c.GetHeader("Content-Encoding"); encoding != "" {
			frame.Headers = map[string]string{"encoding": encoding}
		}
	}

	if !session.deliver(frame) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Agent send buffer is full"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "version": frame.Version})
}

// hello registers a (re)connecting agent. Channels listed in the hello are
// re-bound to the session's uaid so a reconnect keeps receiving pushes.
func (r *Relay) hello(s *session, hello transport.Hello) transport.HelloReply {
	if s.uaid == "" {
		if hello.UAID != "" {
			s.uaid = hello.UAID
		} else {
			s.uaid = uuid.NewString()
		}
	}

	r.mu.Lock()
	if previous, ok := r.sessions[s.uaid]; ok && previous != s {
		previous.close()
	}
	r.sessions[s.uaid] = s
	for _, channelID := range hello.ChannelIDs {
		r.channels[channelID] = s.uaid
	}
	r.mu.Unlock()

	log.Printf("🔌 Agent connected: uaid=%s", s.uaid)
	return transport.HelloReply{
		Type:       transport.TypeHello,
		UAID:       s.uaid,
		Status:     transport.StatusOK,
		UseWebPush: true,
	}
}

func (r *Relay) register(s *session, request transport.Register) transport.RegisterReply {
	if request.ChannelID == "" {
		return transport.RegisterReply{
			Type:      transport.TypeRegister,
			ChannelID: request.ChannelID,
			Status:    transport.StatusServerError,
		}
	}

	r.mu.Lock()
	owner, exists := r.channels[request.ChannelID]
	if exists && owner != s.uaid {
		r.mu.Unlock()
		return transport.RegisterReply{
			Type:      transport.TypeRegister,
			ChannelID: request.ChannelID,
			Status:    transport.StatusConflict,
		}
	}
	r.channels[request.ChannelID] = s.uaid
	r.mu.Unlock()

	log.Printf("📡 Channel %s registered for uaid=%s", request.ChannelID, s.uaid)
	return transport.RegisterReply{
		Type:         transport.TypeRegister,
		ChannelID:    request.ChannelID,
		Status:       transport.StatusOK,
		PushEndpoint: r.baseURL + "/push/" + request.ChannelID,
	}
}

func (r *Relay) unregister(s *session, request transport.Unregister) {
	r.mu.Lock()
	if r.channels[request.ChannelID] == s.uaid {
		delete(r.channels, request.ChannelID)
	}
	r.mu.Unlock()
	log.Printf("📡 Channel %s unregistered", request.ChannelID)
}

func (r *Relay) disconnect(s *session) {
	r.mu.Lock()
	if r.sessions[s.uaid] == s {
		delete(r.sessions, s.uaid)
	}
	r.mu.Unlock()
	log.Printf("🔌 Agent disconnected: uaid=%s", s.uaid)
}

// ConnectedAgents returns the uaids of currently connected agents.
func (r *Relay) ConnectedAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]string, 0, len(r.sessions))
	for uaid := range r.sessions {
		agents = append(agents, uaid)
	}
	return agents
}
