package protocol

// Event is any protocol event delivered on Conn.Events(). Consumers switch on
// the concrete type; events for one connection arrive in order.
type Event any

// Connection states reported by ConnectionUpdate.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "closed"
)

// ConnectionUpdate reports connection state changes. While pairing, QRCode
// and/or PairingCode carry the material to show the user. On ConnClosed,
// Reason explains the disconnect.
type ConnectionUpdate struct {
	State       ConnState
	QRCode      string
	PairingCode string
	Reason      DisconnectReason
	Err         error
}

// UpsertKind tags a MessagesUpsert batch.
type UpsertKind string

const (
	UpsertLive    UpsertKind = "live"    // real-time delivery
	UpsertHistory UpsertKind = "history" // backfill sync, never re-processed
)

// MessagesUpsert is a batch of new or re-delivered messages.
type MessagesUpsert struct {
	Kind     UpsertKind
	Messages []*IncomingMessage
}

// MessageStatusUpdate reports a delivery-state change for a sent message.
type MessageStatusUpdate struct {
	Chat      JID
	MessageID string
	Status    string // "sent", "delivered", "read"
}

// PresenceUpdate reports typing/online state for a chat.
type PresenceUpdate struct {
	Chat     JID
	Presence string // "available", "composing", "paused", "unavailable"
}

// CallUpdate reports an incoming or changed voice/video call.
type CallUpdate struct {
	From   JID
	CallID string
	Status string // "offer", "accept", "reject", "timeout"
	Video  bool
}

// ContactInfo is a pushed contact roster entry.
type ContactInfo struct {
	JID       JID
	Name      string
	AvatarURL string
}

// ContactsUpdate carries pushed contact roster changes.
type ContactsUpdate struct {
	Contacts []ContactInfo
}

// GroupInfo is group metadata.
type GroupInfo struct {
	JID          JID
	Subject      string
	Description  string
	Participants []JID
	Admins       []JID
}

// GroupsUpdate carries pushed group metadata changes.
type GroupsUpdate struct {
	Groups []GroupInfo
}

// CredsUpdate signals that registration credentials changed (pairing
// completed or refreshed). The receiver must flush them immediately.
type CredsUpdate struct {
	Creds Credentials
}

// KeysUpdate carries new signal key material, merged into the credential
// store with debounced write-back.
type KeysUpdate struct {
	Keys map[string]map[string][]byte
}
