package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"garantia-push/transport"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from an agent
	maxMessageSize = 4096

	// Maximum accepted push body: a 4KB record plus coding overhead
	maxPushBody = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // agents connect from anywhere in development
	},
}

// session is one connected agent. send is never closed; done signals
// shutdown so deliver and reply stay safe against a racing disconnect.
type session struct {
	relay *Relay
	uaid  string
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}

	closeOnce sync.Once
}

// serveSession performs the hello handshake and runs the read/write pumps.
func serveSession(r *Relay, conn *websocket.Conn) {
	s := &session{
		relay: r,
		conn:  conn,
		send:  make(chan []byte, 32),
		done:  make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))

	var hello transport.Hello
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != transport.TypeHello {
		log.Printf("❌ Agent handshake failed: %v", err)
		conn.Close()
		return
	}

	reply := r.hello(s, hello)
	data, _ := json.Marshal(reply)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return
	}

	go s.writePump()
	s.readPump()
}

// deliver queues a frame for the agent; false means the session is gone or
// the buffer is full.
func (s *session) deliver(frame transport.Notification) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		return false
	}
	select {
	case <-s.done:
		return false
	case s.send <- data:
		return true
	default:
		log.Printf("⚠️ Agent %s send buffer is full, dropping push", s.uaid)
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// readPump pumps protocol frames from the agent.
func (s *session) readPump() {
	defer func() {
		s.relay.disconnect(s)
		s.close()
		s.conn.Close()
	}()

	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ Agent read error: %v", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame transport.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("❌ Error unmarshaling agent frame: %v", err)
			continue
		}

		switch frame.Type {
		case transport.TypeRegister:
			var request transport.Register
			if err := json.Unmarshal(raw, &request); err != nil {
				continue
			}
			s.reply(s.relay.register(s, request))

		case transport.TypeUnregister:
			var request transport.Unregister
			if err := json.Unmarshal(raw, &request); err != nil {
				continue
			}
			s.relay.unregister(s, request)

		case transport.TypeAck:
			// delivery bookkeeping only; the relay does not redeliver

		default:
			log.Printf("⚠️ Unknown agent frame type: %s", frame.Type)
		}
	}
}

func (s *session) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		log.Printf("⚠️ Agent %s send buffer is full, dropping reply", s.uaid)
	}
}

// writePump pumps queued frames to the agent and keeps the connection alive.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
