// Package channels defines the interface and types for LostLine messaging
// channels. The Twilio webhook is request/response and lives in the gateway;
// socket-based channels (WhatsApp) implement the Channel interface and are
// pumped by the serve command.
package channels

import (
	"context"
	"errors"
	"time"
)

// ErrChannelDisconnected is returned by Send when the channel has no
// connection to its platform.
var ErrChannelDisconnected = errors.New("channel is disconnected")

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageOther MessageType = "other"
)

// Channel is a long-lived, connection-oriented messaging channel.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send delivers a reply to the given channel-native address.
	Send(ctx context.Context, to string, text string) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the channel is connected.
	IsConnected() bool
}

// IncomingMessage is a message received from a channel.
type IncomingMessage struct {
	// ID is the platform message identifier.
	ID string

	// Channel is the source channel name.
	Channel string

	// From is the sender's channel-native address.
	From string

	// FromName is the sender display name, when the platform carries one.
	FromName string

	// Type is the content type.
	Type MessageType

	// Content is the text content (or media caption).
	Content string

	// MediaRefs are opaque references to media carried by the message.
	MediaRefs []string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}
