// Package protocol defines the boundary to the external device-linked chat
// network. The wire protocol itself is an opaque client library consumed
// through the Conn and Dialer interfaces; everything above this package works
// only with the types defined here.
package protocol

import (
	"context"
	"errors"
)

// ErrConnClosed is returned by Conn operations after Close.
var ErrConnClosed = errors.New("protocol: connection closed")

// ChatModification mutates chat-level flags on the network side.
type ChatModification struct {
	Archive  *bool
	Pin      *bool
	Mute     *bool
	MarkRead *bool
	Clear    bool
	Delete   bool
}

// Conn is one live connection to the chat network for a single session.
// Implementations deliver events in arrival order on Events() and close the
// channel when the connection is torn down.
type Conn interface {
	// Events returns the ordered event stream for this connection.
	Events() <-chan Event

	// SendMessage transmits msg to the given address and returns the
	// protocol-assigned message id.
	SendMessage(ctx context.Context, to JID, msg *OutgoingMessage) (*SendReceipt, error)

	// SendPresence publishes a typing/paused indicator to a chat.
	SendPresence(ctx context.Context, to JID, composing bool) error

	// DownloadMedia fetches and decrypts the media referenced by ref.
	DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error)

	// GroupMetadata fetches metadata for a group chat.
	GroupMetadata(ctx context.Context, group JID) (*GroupInfo, error)

	// ChatModify applies chat-level flag changes on the network side.
	ChatModify(ctx context.Context, chat JID, mod ChatModification) error

	// ProfilePictureURL resolves the avatar URL for an address. Empty string
	// with nil error means no picture is set.
	ProfilePictureURL(ctx context.Context, jid JID) (string, error)

	// Logout unlinks the device server-side. Best-effort: callers tolerate
	// failure when the connection is already gone.
	Logout(ctx context.Context) error

	// Close tears the connection down without unlinking.
	Close() error
}

// Dialer opens connections. The returned Conn is already establishing; its
// progress arrives as ConnectionUpdate events.
type Dialer interface {
	Dial(ctx context.Context, auth *AuthState) (Conn, error)
}
