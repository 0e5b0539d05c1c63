// Package ingest turns raw inbound protocol event batches into persisted,
// canonical chat records.
package ingest

import (
	"context"
	"errors"
	"time"

	"whatsapp-bridge/internal/crm"
	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/media"
	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/ws"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultStaleness = 60 * time.Second
	statusTTL        = 24 * time.Hour
)

// AIHook receives inbound non-self text messages after persistence.
// Implemented by ai.Bridge; nil disables the hook.
type AIHook interface {
	HandleInbound(ctx context.Context, sess *models.Session, contact *models.Contact, msg *models.Message)
}

type Pipeline struct {
	db          *gorm.DB
	crm         *crm.Bridge
	media       *media.Store
	hub         ws.Emitter
	ai          AIHook
	countryCode string
	staleness   time.Duration
	log         zerolog.Logger
}

func NewPipeline(db *gorm.DB, crmBridge *crm.Bridge, mediaStore *media.Store, hub ws.Emitter, ai AIHook, countryCode string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		db:          db,
		crm:         crmBridge,
		media:       mediaStore,
		hub:         hub,
		ai:          ai,
		countryCode: countryCode,
		staleness:   defaultStaleness,
		log:         logger.With().Str("component", "ingest").Logger(),
	}
}

// HandleUpsert processes one inbound batch. Only live batches are processed;
// history backfill and events older than the staleness window are dropped so a
// reconnect never replays old traffic.
func (p *Pipeline) HandleUpsert(ctx context.Context, sessionID string, conn protocol.Conn, ev *protocol.MessagesUpsert) {
	if ev.Kind != protocol.UpsertLive {
		return
	}

	var sess models.Session
	if err := p.db.Where("id = ?", sessionID).First(&sess).Error; err != nil {
		p.log.Warn().Err(err).Str("session", sessionID).Msg("session lookup failed, dropping batch")
		return
	}

	now := time.Now()
	for _, m := range ev.Messages {
		if now.Sub(m.Timestamp) > p.staleness {
			continue
		}
		if m.Chat.IsStatusBroadcast() {
			p.ingestStatus(ctx, conn, sessionID, m)
			continue
		}
		p.ingestOne(ctx, conn, &sess, m)
	}
}

// ingestOne runs the full path for a single message: identity resolution,
// content extraction, idempotent persistence, contact and CRM bookkeeping,
// realtime fan-out and the AI hook.
func (p *Pipeline) ingestOne(ctx context.Context, conn protocol.Conn, sess *models.Session, m *protocol.IncomingMessage) {
	chatKey, phone := p.resolveChatIdentity(m)
	if chatKey == "" {
		p.log.Debug().Str("session", sess.ID).Str("message", m.ID).Msg("unresolvable chat identity")
		return
	}

	content := p.extract(ctx, conn, sess.ID, m)
	if content == nil {
		return
	}

	direction := models.DirectionInbound
	status := models.StatusDelivered
	if m.FromMe {
		direction = models.DirectionOutbound
		status = models.StatusSent
	}

	// Distinguish first arrival from re-delivery: only the first arrival
	// bumps aggregates, mirrors to CRM and triggers the AI hook. Re-delivery
	// just refreshes the mutable fields in place.
	var existing models.Message
	err := p.db.Where("session_id = ? AND external_id = ?", sess.ID, m.ID).
		First(&existing).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		p.log.Error().Err(err).Str("session", sess.ID).Str("message", m.ID).Msg("message lookup failed")
		return
	}

	msg := &models.Message{
		SessionID:  sess.ID,
		ExternalID: m.ID,
		ChatKey:    chatKey,
		Direction:  direction,
		Type:       content.Type,
		Content:    content.Content,
		MediaURL:   content.MediaURL,
		QuotedID:   content.QuotedID,
		Status:     status,
		SenderName: m.PushName,
		Timestamp:  m.Timestamp,
	}
	err = database.WithRetry(func() error {
		return p.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "content", "media_url", "updated_at"}),
		}).Create(msg).Error
	})
	if err != nil {
		p.log.Error().Err(err).Str("session", sess.ID).Str("message", m.ID).Msg("message upsert failed")
		return
	}
	metrics.MessagesIngested.WithLabelValues(content.Type).Inc()

	if !created {
		p.hub.Emit(sess.TenantID, ws.EventMessageStatus, msg)
		return
	}

	contact := p.touchContact(sess.ID, chatKey, m, content.groupNotice)

	if phone != "" && !m.Chat.IsGroup() {
		p.crm.SyncMessage(ctx, sess.TenantID, phone, m.PushName, "", direction, content.Type, content.Content, m.ID, m.Timestamp)
	}

	p.hub.Emit(sess.TenantID, ws.EventMessageNew, msg)

	if p.ai != nil && !m.FromMe && content.Type != models.TypeReaction {
		p.ai.HandleInbound(ctx, sess, contact, msg)
	}
}

// resolveChatIdentity maps the event's addressing onto the canonical chat key
// plus the phone used for CRM matching. Linked-identity chats resolve through
// the sender's phone hint on inbound events only; an outgoing echo to a linked
// identity keeps the linked key rather than adopting the local user's own
// number.
func (p *Pipeline) resolveChatIdentity(m *protocol.IncomingMessage) (chatKey, phone string) {
	chat := m.Chat
	if chat.IsGroup() {
		return protocol.ChatKey(chat, p.countryCode), ""
	}
	if chat.IsLinked() {
		if !m.FromMe && m.SenderPhone != "" {
			digits := protocol.NormalizePhone(m.SenderPhone, p.countryCode)
			if digits != "" {
				return digits + "@" + protocol.ServerUser, digits
			}
		}
		return chat.User + "@" + protocol.ServerLinked, ""
	}
	key := protocol.ChatKey(chat, p.countryCode)
	if key == "" {
		return "", ""
	}
	return key, protocol.NormalizePhone(chat.User, p.countryCode)
}

// touchContact creates or updates the per-session contact aggregate. Unread
// increments only for genuine inbound, non-roster events; the display name is
// only taken from remote push names, never from the local user's own profile.
func (p *Pipeline) touchContact(sessionID, chatKey string, m *protocol.IncomingMessage, roster bool) *models.Contact {
	inboundUnread := !m.FromMe && !roster

	var contact models.Contact
	err := p.db.Where("session_id = ? AND external_id = ?", sessionID, chatKey).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contact = models.Contact{
			SessionID:     sessionID,
			ExternalID:    chatKey,
			IsGroup:       m.Chat.IsGroup(),
			LastMessageAt: &m.Timestamp,
		}
		if !m.FromMe {
			contact.DisplayName = m.PushName
		}
		if inboundUnread {
			contact.UnreadCount = 1
		}
		if err := p.db.Create(&contact).Error; err != nil {
			p.log.Warn().Err(err).Str("session", sessionID).Str("chat", chatKey).Msg("contact create failed")
			return nil
		}
		return &contact
	}
	if err != nil {
		p.log.Warn().Err(err).Str("session", sessionID).Str("chat", chatKey).Msg("contact lookup failed")
		return nil
	}

	updates := map[string]any{"last_message_at": &m.Timestamp}
	if !m.FromMe && m.PushName != "" && contact.DisplayName == "" {
		updates["display_name"] = m.PushName
		contact.DisplayName = m.PushName
	}
	if inboundUnread {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
		contact.UnreadCount++
	}
	if err := p.db.Model(&models.Contact{}).
		Where("session_id = ? AND external_id = ?", sessionID, chatKey).
		Updates(updates).Error; err != nil {
		p.log.Warn().Err(err).Str("session", sessionID).Str("chat", chatKey).Msg("contact update failed")
	}
	contact.LastMessageAt = &m.Timestamp
	return &contact
}

// ingestStatus routes a status-broadcast post to its own short-lived record,
// outside the normal conversation flow.
func (p *Pipeline) ingestStatus(ctx context.Context, conn protocol.Conn, sessionID string, m *protocol.IncomingMessage) {
	content := p.extract(ctx, conn, sessionID, m)
	if content == nil {
		return
	}
	row := models.StatusUpdate{
		SessionID:  sessionID,
		ExternalID: m.ID,
		PosterID:   m.Sender.User,
		Type:       content.Type,
		Content:    content.Content,
		MediaURL:   content.MediaURL,
		Timestamp:  m.Timestamp,
		ExpiresAt:  m.Timestamp.Add(statusTTL),
	}
	if err := p.db.Create(&row).Error; err != nil {
		p.log.Warn().Err(err).Str("session", sessionID).Msg("status record failed")
	}
}

// MarkChatRead resets the unread counter for a chat, used when the operator
// opens a conversation.
func (p *Pipeline) MarkChatRead(sessionID, chatKey string) error {
	return p.db.Model(&models.Contact{}).
		Where("session_id = ? AND external_id = ?", sessionID, chatKey).
		Update("unread_count", 0).Error
}

// ExpireStatuses deletes status records past their 24h lifetime. Run
// periodically.
func (p *Pipeline) ExpireStatuses() error {
	return p.db.Where("expires_at < ?", time.Now()).
		Delete(&models.StatusUpdate{}).Error
}
