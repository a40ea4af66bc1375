// Package transport speaks the push-delivery websocket protocol between the
// agent and the push service: a hello handshake, channel registration that
// yields a push endpoint, and notification frames acknowledged by the client.
package transport

// MessageType discriminates protocol frames.
type MessageType string

const (
	TypeHello        MessageType = "hello"
	TypeRegister     MessageType = "register"
	TypeUnregister   MessageType = "unregister"
	TypeNotification MessageType = "notification"
	TypeAck          MessageType = "ack"
)

// Protocol status codes carried in replies.
const (
	StatusOK          = 200
	StatusConflict    = 409
	StatusServerError = 500
)

// Frame is the minimal envelope used to sniff a frame's type before
// decoding it fully.
type Frame struct {
	Type MessageType `json:"messageType"`
}

type Hello struct {
	Type       MessageType `json:"messageType"`
	UAID       string      `json:"uaid,omitempty"`
	ChannelIDs []string    `json:"channelIDs,omitempty"`
	UseWebPush bool        `json:"use_webpush,omitempty"`
}

type HelloReply struct {
	Type       MessageType `json:"messageType"`
	UAID       string      `json:"uaid"`
	Status     int         `json:"status"`
	UseWebPush bool        `json:"use_webpush,omitempty"`
}

type Register struct {
	Type      MessageType `json:"messageType"`
	ChannelID string      `json:"channelID"`
	Key       string      `json:"key,omitempty"`
}

type RegisterReply struct {
	Type         MessageType `json:"messageType"`
	ChannelID    string      `json:"channelID"`
	Status       int         `json:"status"`
	PushEndpoint string      `json:"pushEndpoint"`
}

type Unregister struct {
	Type      MessageType `json:"messageType"`
	ChannelID string      `json:"channelID"`
}

// Notification delivers one push message. Data is the (possibly encrypted)
// payload, base64url encoded; Headers carries the content coding so the
// receiver knows whether to decrypt.
type Notification struct {
	Type      MessageType       `json:"messageType"`
	ChannelID string            `json:"channelID"`
	Version   string            `json:"version"`
	Data      string            `json:"data,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type Ack struct {
	Type    MessageType `json:"messageType"`
	Updates []AckUpdate `json:"updates"`
}

type AckUpdate struct {
	ChannelID string `json:"channelID"`
	Version   string `json:"version"`
}
