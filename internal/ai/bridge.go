package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/outbound"
	"whatsapp-bridge/internal/ws"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	historyLimit    = 10
	awaySuppression = time.Hour
)

// Fixed acknowledgments for non-text inbound content when auto-reply is on.
// No generation call is made for media.
var mediaAcks = map[string]string{
	models.TypeImage:    "Thanks for the image, we'll take a look shortly.",
	models.TypeVideo:    "Thanks for the video, we'll take a look shortly.",
	models.TypeAudio:    "Thanks for the voice note, we'll listen shortly.",
	models.TypeDocument: "Thanks, we received your document.",
	models.TypeSticker:  "",
	models.TypeLocation: "Thanks for sharing your location.",
	models.TypeContact:  "Thanks for sharing the contact.",
}

// Sender is the outbound path for generated replies. Implemented by
// outbound.Service.
type Sender interface {
	SendText(ctx context.Context, sessionID, to, text string, opts *outbound.Options) (*models.Message, error)
}

type Bridge struct {
	db     *gorm.DB
	gen    Generator
	sender Sender
	hub    ws.Emitter
	log    zerolog.Logger

	mu       sync.Mutex
	lastAway map[string]time.Time // sessionID+chatKey -> last away message
}

func NewBridge(db *gorm.DB, gen Generator, sender Sender, hub ws.Emitter, logger zerolog.Logger) *Bridge {
	return &Bridge{
		db:       db,
		gen:      gen,
		sender:   sender,
		hub:      hub,
		log:      logger.With().Str("component", "ai").Logger(),
		lastAway: make(map[string]time.Time),
	}
}

// HandleInbound is invoked for every inbound non-self message after
// persistence. All failures are logged and swallowed; the AI layer never
// breaks ingestion.
func (b *Bridge) HandleInbound(ctx context.Context, sess *models.Session, contact *models.Contact, msg *models.Message) {
	if sess.AIMode == models.AIModeOff || sess.AIMode == "" {
		return
	}
	if contact != nil && contact.IsGroup {
		return
	}

	if msg.Type != models.TypeText {
		b.ackMedia(ctx, sess, msg)
		return
	}

	if !b.withinWorkHours(sess, time.Now()) {
		b.sendAwayMessage(ctx, sess, msg)
		return
	}

	req := &GenerateRequest{
		Content:         msg.Content,
		History:         b.history(sess.ID, msg.ChatKey),
		CustomerProfile: b.profile(sess.TenantID, msg.ChatKey, contact),
		TenantConfig: TenantConfig{
			TenantID:  sess.TenantID,
			SessionID: sess.ID,
			Mode:      sess.AIMode,
		},
	}
	resp, err := b.gen.Generate(ctx, req)
	if err != nil {
		b.log.Warn().Err(err).Str("session", sess.ID).Msg("generation failed")
		return
	}
	if resp.Text == "" {
		return
	}

	switch sess.AIMode {
	case models.AIModeAuto:
		_, err := b.sender.SendText(ctx, sess.ID, msg.ChatKey, resp.Text, &outbound.Options{
			AIGenerated:    true,
			AIConfidence:   resp.Confidence,
			SimulateTyping: true,
		})
		if err != nil {
			b.log.Warn().Err(err).Str("session", sess.ID).Msg("auto reply failed")
		}
	case models.AIModeSuggest:
		b.hub.Emit(sess.TenantID, ws.EventAISuggestion, map[string]any{
			"session_id": sess.ID,
			"chat_key":   msg.ChatKey,
			"reply_to":   msg.ExternalID,
			"text":       resp.Text,
			"confidence": resp.Confidence,
			"intent":     resp.Intent,
			"sentiment":  resp.Sentiment,
		})
	}
}

func (b *Bridge) ackMedia(ctx context.Context, sess *models.Session, msg *models.Message) {
	if sess.AIMode != models.AIModeAuto {
		return
	}
	ack, ok := mediaAcks[msg.Type]
	if !ok || ack == "" {
		return
	}
	if _, err := b.sender.SendText(ctx, sess.ID, msg.ChatKey, ack, &outbound.Options{AIGenerated: true}); err != nil {
		b.log.Debug().Err(err).Str("session", sess.ID).Msg("media ack failed")
	}
}

// sendAwayMessage sends the configured away text at most once per identity
// per hour.
func (b *Bridge) sendAwayMessage(ctx context.Context, sess *models.Session, msg *models.Message) {
	if sess.AwayMessage == "" {
		return
	}
	key := sess.ID + "|" + msg.ChatKey

	b.mu.Lock()
	last, seen := b.lastAway[key]
	if seen && time.Since(last) < awaySuppression {
		b.mu.Unlock()
		return
	}
	b.lastAway[key] = time.Now()
	b.mu.Unlock()

	if _, err := b.sender.SendText(ctx, sess.ID, msg.ChatKey, sess.AwayMessage, &outbound.Options{AIGenerated: true}); err != nil {
		b.log.Debug().Err(err).Str("session", sess.ID).Msg("away message failed")
		b.mu.Lock()
		delete(b.lastAway, key)
		b.mu.Unlock()
	}
}

// withinWorkHours checks the session's configured window. Unconfigured hours
// mean always available. Overnight windows wrap midnight.
func (b *Bridge) withinWorkHours(sess *models.Session, now time.Time) bool {
	start, ok1 := models.ParseClock(sess.WorkHoursStart)
	end, ok2 := models.ParseClock(sess.WorkHoursEnd)
	if !ok1 || !ok2 || start == end {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// history loads the most recent messages of the chat, oldest first.
func (b *Bridge) history(sessionID, chatKey string) []HistoryEntry {
	var rows []models.Message
	err := b.db.
		Where("session_id = ? AND chat_key = ?", sessionID, chatKey).
		Order("timestamp desc").
		Limit(historyLimit).
		Find(&rows).Error
	if err != nil {
		b.log.Debug().Err(err).Str("session", sessionID).Msg("history load failed")
		return nil
	}

	out := make([]HistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Type != models.TypeText {
			continue
		}
		out = append(out, HistoryEntry{Direction: rows[i].Direction, Content: rows[i].Content})
	}
	return out
}

func (b *Bridge) profile(tenantID, chatKey string, contact *models.Contact) *CustomerProfile {
	phone := chatKey
	if at := strings.IndexByte(phone, '@'); at >= 0 {
		phone = phone[:at]
	}

	var customer models.Customer
	err := b.db.Where("tenant_id = ? AND phone = ?", tenantID, phone).First(&customer).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			b.log.Debug().Err(err).Str("tenant", tenantID).Msg("profile load failed")
		}
		if contact == nil {
			return nil
		}
		return &CustomerProfile{Name: contact.DisplayName, Phone: phone}
	}
	return &CustomerProfile{Name: customer.Name, Phone: customer.Phone, Status: customer.Status}
}
