package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a bridge session. Transitions are
// driven exclusively by session.Manager.
type SessionStatus string

const (
	SessionConnecting   SessionStatus = "connecting"
	SessionQRPending    SessionStatus = "qr_pending"
	SessionConnected    SessionStatus = "connected"
	SessionDisconnected SessionStatus = "disconnected"
	SessionLoggedOut    SessionStatus = "logged_out" // terminal
	SessionDeleted      SessionStatus = "deleted"    // terminal
)

// AI reply modes for a session.
const (
	AIModeOff     = "off"
	AIModeAuto    = "auto"
	AIModeSuggest = "suggest"
)

// Session is one device-linked pairing between a tenant and the chat network.
type Session struct {
	ID          string        `gorm:"type:varchar(64);primaryKey" json:"id"`
	TenantID    string        `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name        string        `gorm:"type:varchar(255)" json:"name"`
	Status      SessionStatus `gorm:"type:varchar(20);default:'disconnected'" json:"status"`
	PhoneNumber string        `gorm:"type:varchar(32)" json:"phone_number"`
	AvatarURL   string        `gorm:"type:text" json:"avatar_url"`

	// Per-session behavior flags
	AIMode         string `gorm:"type:varchar(16);default:'off'" json:"ai_mode"`
	WorkHoursStart string `gorm:"type:varchar(5)" json:"work_hours_start"` // "09:00"
	WorkHoursEnd   string `gorm:"type:varchar(5)" json:"work_hours_end"`   // "17:00"
	AwayMessage    string `gorm:"type:text" json:"away_message"`

	LastConnectedAt    *time.Time `json:"last_connected_at"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// SessionCredential holds the encoded credential/key blob for one session.
// The blob is produced by the binary-safe codec in internal/session.
type SessionCredential struct {
	SessionID string    `gorm:"type:varchar(64);primaryKey" json:"session_id"`
	Data      []byte    `gorm:"type:bytea" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SessionCredential) TableName() string { return "session_credentials" }

// Contact is the per-session view of a chat identity. Created lazily on the
// first inbound or outbound event for that identity.
type Contact struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SessionID     string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_contact_session_ext,priority:1" json:"session_id"`
	ExternalID    string     `gorm:"type:varchar(128);not null;uniqueIndex:ux_contact_session_ext,priority:2" json:"external_id"`
	DisplayName   string     `gorm:"type:varchar(255)" json:"display_name"`
	AvatarURL     string     `gorm:"type:text" json:"avatar_url"`
	IsGroup       bool       `gorm:"default:false" json:"is_group"`
	Pinned        bool       `gorm:"default:false" json:"pinned"`
	Archived      bool       `gorm:"default:false" json:"archived"`
	Muted         bool       `gorm:"default:false" json:"muted"`
	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CustomerID    *string    `gorm:"type:char(36)" json:"customer_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }

// Message direction.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message delivery status.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message types stored on Message.Type.
const (
	TypeText        = "text"
	TypeImage       = "image"
	TypeVideo       = "video"
	TypeAudio       = "audio"
	TypeDocument    = "document"
	TypeSticker     = "sticker"
	TypeLocation    = "location"
	TypeContact     = "contact"
	TypeReaction    = "reaction"
	TypeInteractive = "interactive"
	TypeProduct     = "product"
)

// Message is a persisted chat message. ExternalID is the protocol-assigned
// message id and is the idempotency key: the same id is never inserted twice
// for a session, re-deliveries update the existing row in place.
type Message struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SessionID  string `gorm:"type:varchar(64);not null;uniqueIndex:ux_message_session_ext,priority:1" json:"session_id"`
	ExternalID string `gorm:"type:varchar(128);not null;uniqueIndex:ux_message_session_ext,priority:2" json:"external_id"`
	ChatKey    string `gorm:"type:varchar(128);not null;index" json:"chat_key"`
	Direction  string `gorm:"type:varchar(10);not null" json:"direction"`
	Type       string `gorm:"type:varchar(20);not null" json:"type"`
	Content    string `gorm:"type:text" json:"content"`
	MediaURL   string `gorm:"type:text" json:"media_url"`
	QuotedID   string `gorm:"type:varchar(128)" json:"quoted_id"`
	Status     string `gorm:"type:varchar(16);default:'pending'" json:"status"`
	SenderName string `gorm:"type:varchar(255)" json:"sender_name"`

	AIGenerated  bool    `gorm:"default:false" json:"ai_generated"`
	AIConfidence float64 `json:"ai_confidence,omitempty"`

	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

// StatusUpdate is a status-broadcast post. Kept out of the normal conversation
// flow and expired after 24 hours.
type StatusUpdate struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"type:varchar(64);not null;index" json:"session_id"`
	ExternalID string    `gorm:"type:varchar(128);not null" json:"external_id"`
	PosterID   string    `gorm:"type:varchar(128)" json:"poster_id"`
	Type       string    `gorm:"type:varchar(20)" json:"type"`
	Content    string    `gorm:"type:text" json:"content"`
	MediaURL   string    `gorm:"type:text" json:"media_url"`
	Timestamp  time.Time `json:"timestamp"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

func (StatusUpdate) TableName() string { return "status_updates" }

// TenantSettings carries tenant-level notification configuration.
type TenantSettings struct {
	TenantID             string    `gorm:"type:varchar(64);primaryKey" json:"tenant_id"`
	NotificationsEnabled bool      `gorm:"default:true" json:"notifications_enabled"`
	DefaultSessionID     string    `gorm:"type:varchar(64)" json:"default_session_id"`
	QuietHoursStart      string    `gorm:"type:varchar(5)" json:"quiet_hours_start"` // "22:00"
	QuietHoursEnd        string    `gorm:"type:varchar(5)" json:"quiet_hours_end"`   // "08:00"
	Timezone             string    `gorm:"type:varchar(64)" json:"timezone"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TenantSettings) TableName() string { return "tenant_settings" }
