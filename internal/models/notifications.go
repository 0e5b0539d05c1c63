package models

import (
	"time"
)

// Notification delivery states (logs and queue items).
const (
	NotificationPending    = "PENDING"
	NotificationProcessing = "PROCESSING"
	NotificationSending    = "SENDING"
	NotificationSent       = "SENT"
	NotificationDelivered  = "DELIVERED"
	NotificationFailed     = "FAILED" // terminal
)

// NotificationTemplate is a renderable notification body. TenantID is empty
// for system defaults; tenant-specific templates take precedence.
type NotificationTemplate struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TenantID    string     `gorm:"type:varchar(64);index:idx_template_tenant_event,priority:1" json:"tenant_id"`
	EventType   string     `gorm:"type:varchar(64);not null;index:idx_template_tenant_event,priority:2" json:"event_type"`
	Category    string     `gorm:"type:varchar(64)" json:"category"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	Interactive string     `gorm:"type:text" json:"interactive"` // optional JSON buttons/list payload
	Active      bool       `gorm:"default:true" json:"active"`
	UsageCount  int64      `gorm:"default:0" json:"usage_count"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NotificationTemplate) TableName() string { return "notification_templates" }

// NotificationLog records one delivery attempt outcome.
type NotificationLog struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	TenantID   string `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	SessionID  string `gorm:"type:varchar(64)" json:"session_id"`
	Recipient  string `gorm:"type:varchar(32);not null" json:"recipient"`
	Category   string `gorm:"type:varchar(64)" json:"category"`
	EventType  string `gorm:"type:varchar(64);index" json:"event_type"`
	Content    string `gorm:"type:text" json:"content"`
	Status     string `gorm:"type:varchar(16);index" json:"status"`
	MessageID  string `gorm:"type:varchar(128)" json:"message_id"`
	FailReason string `gorm:"type:text" json:"fail_reason"`

	// Link back to the originating business object (order, asset, employee...)
	RelatedType string `gorm:"type:varchar(64)" json:"related_type"`
	RelatedID   string `gorm:"type:varchar(64)" json:"related_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

// NotificationQueueItem is a deferred delivery. Content is rendered at enqueue
// time; the sending session is resolved at processing time. RetryCount never
// exceeds MaxRetries: the MaxRetries-th consecutive failure marks the item
// terminally FAILED and it is never polled again.
type NotificationQueueItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Recipient   string    `gorm:"type:varchar(32);not null" json:"recipient"`
	Category    string    `gorm:"type:varchar(64)" json:"category"`
	EventType   string    `gorm:"type:varchar(64)" json:"event_type"`
	Content     string    `gorm:"type:text" json:"content"`
	Interactive string    `gorm:"type:text" json:"interactive"`
	Priority    int       `gorm:"default:0;index:idx_queue_due,priority:2" json:"priority"`
	ScheduledAt time.Time `gorm:"not null;index:idx_queue_due,priority:3" json:"scheduled_at"`
	Status      string    `gorm:"type:varchar(16);default:'PENDING';index:idx_queue_due,priority:1" json:"status"`
	RetryCount  int       `gorm:"default:0" json:"retry_count"`
	MaxRetries  int       `gorm:"default:3" json:"max_retries"`
	LastError   string    `gorm:"type:text" json:"last_error"`

	RelatedType string `gorm:"type:varchar(64)" json:"related_type"`
	RelatedID   string `gorm:"type:varchar(64)" json:"related_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NotificationQueueItem) TableName() string { return "notification_queue" }
