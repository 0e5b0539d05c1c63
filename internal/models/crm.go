package models

import (
	"time"
)

// Customer statuses.
const (
	CustomerLead   = "lead"
	CustomerActive = "active"
)

// Customer is the internal CRM identity a chat contact reconciles into.
type Customer struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	TenantID  string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_customer_tenant_phone,priority:1" json:"tenant_id"`
	Phone     string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_customer_tenant_phone,priority:2" json:"phone"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	AvatarURL string    `gorm:"type:text" json:"avatar_url"`
	Status    string    `gorm:"type:varchar(20);default:'lead'" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// Conversation is the tenant's unified timeline for one customer on one
// channel. At most one active conversation per (tenant, customer, channel).
type Conversation struct {
	ID            string     `gorm:"type:char(36);primaryKey" json:"id"`
	TenantID      string     `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	CustomerID    string     `gorm:"type:char(36);not null;index" json:"customer_id"`
	Channel       string     `gorm:"type:varchar(32);default:'whatsapp'" json:"channel"`
	Active        bool       `gorm:"default:true" json:"active"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	Preview       string     `gorm:"type:varchar(255)" json:"preview"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMessage is one row appended to a conversation timeline.
type ConversationMessage struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID string    `gorm:"type:char(36);not null;index" json:"conversation_id"`
	Direction      string    `gorm:"type:varchar(10);not null" json:"direction"`
	Type           string    `gorm:"type:varchar(20)" json:"type"`
	Content        string    `gorm:"type:text" json:"content"`
	ExternalID     string    `gorm:"type:varchar(128)" json:"external_id"`
	SentAt         time.Time `json:"sent_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ConversationMessage) TableName() string { return "conversation_messages" }
