// Package notify delivers templated business notifications over chat, with
// quiet-hours deferral and a retrying delivery queue.
package notify

// Typed failure reasons. Delivery never panics or returns a bare error for
// business conditions; callers branch on Reason.
const (
	ReasonNotificationsDisabled = "notifications_disabled"
	ReasonNoSession             = "no_session"
	ReasonSessionNotConnected   = "session_not_connected"
	ReasonNoTemplate            = "no_template"
	ReasonInvalidRecipient      = "invalid_recipient"
	ReasonInvalidRequest        = "invalid_request"
	ReasonSendFailed            = "send_failed"
)

// Result is the structured outcome of a notification operation.
type Result struct {
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	LogID     uint   `json:"log_id,omitempty"`

	// Set when the notification was deferred instead of sent.
	Scheduled   bool   `json:"scheduled,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
	QueueID     uint   `json:"queue_id,omitempty"`
}

func failure(reason, detail string) *Result {
	return &Result{Success: false, Reason: reason, Detail: detail}
}
