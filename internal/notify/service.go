package notify

import (
	"context"
	"errors"
	"time"

	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/outbound"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/ws"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Sender transmits the rendered content. Implemented by outbound.Service.
type Sender interface {
	SendText(ctx context.Context, sessionID, to, text string, opts *outbound.Options) (*models.Message, error)
}

// ConnChecker reports whether a session currently holds a live connection.
// Implemented by session.Manager.
type ConnChecker interface {
	Connected(sessionID string) bool
}

// Request describes one notification to deliver.
type Request struct {
	TenantID       string            `json:"tenant_id" validate:"required"`
	RecipientPhone string            `json:"recipient_phone" validate:"required"`
	Category       string            `json:"category"`
	EventType      string            `json:"event_type" validate:"required"`
	Variables      map[string]string `json:"variables"`
	Priority       int               `json:"priority"`
	ScheduleAt     *time.Time        `json:"schedule_at"`

	RelatedType string `json:"related_type"`
	RelatedID   string `json:"related_id"`
}

type Service struct {
	db          *gorm.DB
	sender      Sender
	conns       ConnChecker
	hub         ws.Emitter
	validate    *validator.Validate
	countryCode string
	log         zerolog.Logger
}

func NewService(db *gorm.DB, sender Sender, conns ConnChecker, hub ws.Emitter, countryCode string, logger zerolog.Logger) *Service {
	return &Service{
		db:          db,
		sender:      sender,
		conns:       conns,
		hub:         hub,
		validate:    validator.New(),
		countryCode: countryCode,
		log:         logger.With().Str("component", "notify").Logger(),
	}
}

// SendNotification validates, resolves session and template, renders and
// transmits. Business conditions come back as typed Result failures, never as
// errors.
func (s *Service) SendNotification(ctx context.Context, req *Request) *Result {
	if err := s.validate.Struct(req); err != nil {
		return failure(ReasonInvalidRequest, err.Error())
	}

	settings := s.tenantSettings(req.TenantID)
	if !settings.NotificationsEnabled {
		return failure(ReasonNotificationsDisabled, "")
	}

	if req.ScheduleAt != nil {
		return s.ScheduleNotification(ctx, req, *req.ScheduleAt)
	}
	if now := time.Now(); InQuietHours(settings, now) {
		return s.ScheduleNotification(ctx, req, QuietEnd(settings, now))
	}

	sessionID, reason := s.resolveSession(req.TenantID, settings)
	if reason != "" {
		return failure(reason, "")
	}

	tpl, ok := s.resolveTemplate(req.TenantID, req.EventType)
	if !ok {
		return failure(ReasonNoTemplate, req.EventType)
	}
	content := Render(tpl.Body, req.Variables)

	recipient := protocol.NormalizePhone(req.RecipientPhone, s.countryCode)
	if recipient == "" {
		return failure(ReasonInvalidRecipient, req.RecipientPhone)
	}

	logRow := &models.NotificationLog{
		TenantID:    req.TenantID,
		SessionID:   sessionID,
		Recipient:   recipient,
		Category:    req.Category,
		EventType:   req.EventType,
		Content:     content,
		Status:      models.NotificationSending,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
	}
	if err := s.db.Create(logRow).Error; err != nil {
		s.log.Error().Err(err).Str("tenant", req.TenantID).Msg("notification log create failed")
		return failure(ReasonSendFailed, err.Error())
	}

	msg, err := s.sender.SendText(ctx, sessionID, recipient, content, nil)
	if err != nil {
		s.db.Model(logRow).Updates(map[string]any{
			"status":      models.NotificationFailed,
			"fail_reason": err.Error(),
		})
		metrics.NotificationsDelivered.WithLabelValues(models.NotificationFailed).Inc()
		s.log.Warn().Err(err).
			Str("tenant", req.TenantID).
			Str("event", req.EventType).
			Msg("notification send failed")
		return &Result{Success: false, Reason: ReasonSendFailed, Detail: err.Error(), LogID: logRow.ID}
	}

	s.db.Model(logRow).Updates(map[string]any{
		"status":     models.NotificationSent,
		"message_id": msg.ExternalID,
	})
	s.bumpTemplateUsage(tpl.ID)
	metrics.NotificationsDelivered.WithLabelValues(models.NotificationSent).Inc()
	s.hub.Emit(req.TenantID, ws.EventNotificationNew, logRow)

	return &Result{Success: true, MessageID: msg.ExternalID, LogID: logRow.ID}
}

// ScheduleNotification renders now and enqueues for later delivery.
func (s *Service) ScheduleNotification(ctx context.Context, req *Request, at time.Time) *Result {
	if err := s.validate.Struct(req); err != nil {
		return failure(ReasonInvalidRequest, err.Error())
	}
	settings := s.tenantSettings(req.TenantID)
	if !settings.NotificationsEnabled {
		return failure(ReasonNotificationsDisabled, "")
	}

	tpl, ok := s.resolveTemplate(req.TenantID, req.EventType)
	if !ok {
		return failure(ReasonNoTemplate, req.EventType)
	}
	recipient := protocol.NormalizePhone(req.RecipientPhone, s.countryCode)
	if recipient == "" {
		return failure(ReasonInvalidRecipient, req.RecipientPhone)
	}

	item := &models.NotificationQueueItem{
		TenantID:    req.TenantID,
		Recipient:   recipient,
		Category:    req.Category,
		EventType:   req.EventType,
		Content:     Render(tpl.Body, req.Variables),
		Interactive: tpl.Interactive,
		Priority:    req.Priority,
		ScheduledAt: at,
		Status:      models.NotificationPending,
		MaxRetries:  3,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		s.log.Error().Err(err).Str("tenant", req.TenantID).Msg("queue item create failed")
		return failure(ReasonSendFailed, err.Error())
	}
	return &Result{
		Success:     true,
		Scheduled:   true,
		ScheduledAt: at.Format(time.RFC3339),
		QueueID:     item.ID,
	}
}

// resolveSession prefers the tenant's configured default session, then any
// connected session owned by the tenant.
func (s *Service) resolveSession(tenantID string, settings *models.TenantSettings) (string, string) {
	if settings.DefaultSessionID != "" && s.conns.Connected(settings.DefaultSessionID) {
		return settings.DefaultSessionID, ""
	}

	var sessions []models.Session
	if err := s.db.Where("tenant_id = ?", tenantID).Find(&sessions).Error; err != nil {
		return "", ReasonNoSession
	}
	if len(sessions) == 0 {
		return "", ReasonNoSession
	}
	for _, sess := range sessions {
		if s.conns.Connected(sess.ID) {
			return sess.ID, ""
		}
	}
	return "", ReasonSessionNotConnected
}

// resolveTemplate prefers a tenant-specific active template, falling back to
// the system default (empty tenant id) for the event type.
func (s *Service) resolveTemplate(tenantID, eventType string) (*models.NotificationTemplate, bool) {
	var tpl models.NotificationTemplate
	err := s.db.
		Where("tenant_id = ? AND event_type = ? AND active = ?", tenantID, eventType, true).
		First(&tpl).Error
	if err == nil {
		return &tpl, true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn().Err(err).Str("event", eventType).Msg("template lookup failed")
		return nil, false
	}
	err = s.db.
		Where("tenant_id = ? AND event_type = ? AND active = ?", "", eventType, true).
		First(&tpl).Error
	if err != nil {
		return nil, false
	}
	return &tpl, true
}

func (s *Service) tenantSettings(tenantID string) *models.TenantSettings {
	settings := models.TenantSettings{TenantID: tenantID, NotificationsEnabled: true}
	err := s.db.Where("tenant_id = ?", tenantID).First(&settings).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn().Err(err).Str("tenant", tenantID).Msg("settings lookup failed")
	}
	return &settings
}

func (s *Service) bumpTemplateUsage(id uint) {
	now := time.Now()
	if err := s.db.Model(&models.NotificationTemplate{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": &now,
		}).Error; err != nil {
		s.log.Debug().Err(err).Uint("template", id).Msg("usage bump failed")
	}
}

// Stats aggregates delivery outcomes for a tenant.
type Stats struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"` // queued, not yet delivered
}

func (s *Service) TenantStats(tenantID string) (*Stats, error) {
	var st Stats
	logs := s.db.Model(&models.NotificationLog{}).Where("tenant_id = ?", tenantID)
	if err := logs.Count(&st.Total).Error; err != nil {
		return nil, err
	}
	logs = s.db.Model(&models.NotificationLog{}).Where("tenant_id = ?", tenantID)
	if err := logs.Where("status = ?", models.NotificationSent).Count(&st.Sent).Error; err != nil {
		return nil, err
	}
	logs = s.db.Model(&models.NotificationLog{}).Where("tenant_id = ?", tenantID)
	if err := logs.Where("status = ?", models.NotificationFailed).Count(&st.Failed).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.NotificationQueueItem{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.NotificationPending).
		Count(&st.Pending).Error; err != nil {
		return nil, err
	}
	return &st, nil
}
