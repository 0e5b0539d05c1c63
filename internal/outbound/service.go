// Package outbound is the uniform send API used by humans (via the HTTP
// surface), the AI bridge and the notification queue.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/ws"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidRecipient is returned before any network call when the
	// recipient cannot be normalized to a protocol address.
	ErrInvalidRecipient = errors.New("invalid recipient")
)

const (
	typingPerRune = 40 * time.Millisecond
	typingCap     = 2 * time.Second
)

// ConnProvider hands out the live connection for a session, failing with
// session.ErrNotConnected when there is none. Implemented by session.Manager.
type ConnProvider interface {
	Conn(sessionID string) (protocol.Conn, error)
}

// Options tune a single send.
type Options struct {
	QuotedID       string
	SimulateTyping bool

	// Set when the content was produced by the AI bridge.
	AIGenerated  bool
	AIConfidence float64
}

type Service struct {
	db          *gorm.DB
	conns       ConnProvider
	hub         ws.Emitter
	countryCode string
	log         zerolog.Logger
}

func NewService(db *gorm.DB, conns ConnProvider, hub ws.Emitter, countryCode string, logger zerolog.Logger) *Service {
	return &Service{
		db:          db,
		conns:       conns,
		hub:         hub,
		countryCode: countryCode,
		log:         logger.With().Str("component", "outbound").Logger(),
	}
}

func (s *Service) SendText(ctx context.Context, sessionID, to, text string, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type: protocol.MsgText,
		Text: text,
	}, models.TypeText, text, opts)
}

func (s *Service) SendImage(ctx context.Context, sessionID, to string, data []byte, mimeType, caption string, opts *Options) (*models.Message, error) {
	return s.sendMedia(ctx, sessionID, to, protocol.MsgImage, models.TypeImage, data, mimeType, caption, "", opts)
}

func (s *Service) SendVideo(ctx context.Context, sessionID, to string, data []byte, mimeType, caption string, opts *Options) (*models.Message, error) {
	return s.sendMedia(ctx, sessionID, to, protocol.MsgVideo, models.TypeVideo, data, mimeType, caption, "", opts)
}

func (s *Service) SendAudio(ctx context.Context, sessionID, to string, data []byte, mimeType string, opts *Options) (*models.Message, error) {
	return s.sendMedia(ctx, sessionID, to, protocol.MsgAudio, models.TypeAudio, data, mimeType, "", "", opts)
}

func (s *Service) SendDocument(ctx context.Context, sessionID, to string, data []byte, mimeType, fileName string, opts *Options) (*models.Message, error) {
	return s.sendMedia(ctx, sessionID, to, protocol.MsgDocument, models.TypeDocument, data, mimeType, "", fileName, opts)
}

func (s *Service) SendLocation(ctx context.Context, sessionID, to string, loc *protocol.Location, opts *Options) (*models.Message, error) {
	content := fmt.Sprintf("%f,%f", loc.Latitude, loc.Longitude)
	if loc.Name != "" {
		content += " " + loc.Name
	}
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type:     protocol.MsgLocation,
		Location: loc,
	}, models.TypeLocation, content, opts)
}

func (s *Service) SendContact(ctx context.Context, sessionID, to string, card *protocol.ContactCard, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type:    protocol.MsgContactCard,
		Contact: card,
	}, models.TypeContact, card.DisplayName, opts)
}

func (s *Service) SendReaction(ctx context.Context, sessionID, to, targetID, emoji string, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type:     protocol.MsgReaction,
		Reaction: &protocol.Reaction{TargetID: targetID, Emoji: emoji},
	}, models.TypeReaction, emoji, opts)
}

func (s *Service) SendButtons(ctx context.Context, sessionID, to string, payload *protocol.ButtonsPayload, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type:    protocol.MsgButtonReply,
		Buttons: payload,
	}, models.TypeInteractive, payload.Body, opts)
}

func (s *Service) SendList(ctx context.Context, sessionID, to string, payload *protocol.ListPayload, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type: protocol.MsgListReply,
		List: payload,
	}, models.TypeInteractive, payload.Body, opts)
}

func (s *Service) SendProduct(ctx context.Context, sessionID, to string, payload *protocol.ProductPayload, opts *Options) (*models.Message, error) {
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type:    protocol.MsgProduct,
		Product: payload,
	}, models.TypeProduct, payload.Body, opts)
}

func (s *Service) sendMedia(ctx context.Context, sessionID, to string, kind protocol.MessageType, modelType string, data []byte, mimeType, caption, fileName string, opts *Options) (*models.Message, error) {
	content := caption
	if content == "" {
		content = fileName
	}
	return s.send(ctx, sessionID, to, &protocol.OutgoingMessage{
		Type: kind,
		Media: &protocol.OutgoingMedia{
			Kind:     kind,
			Data:     data,
			MimeType: mimeType,
			Caption:  caption,
			FileName: fileName,
		},
	}, modelType, content, opts)
}

// send is the single transmit path: validate, resolve connection, optionally
// simulate typing, transmit, persist, touch the contact, fan out.
func (s *Service) send(ctx context.Context, sessionID, to string, out *protocol.OutgoingMessage, modelType, content string, opts *Options) (*models.Message, error) {
	if opts == nil {
		opts = &Options{}
	}

	recipient := protocol.ParseJID(to)
	var chatKey string
	if recipient.IsGroup() {
		chatKey = protocol.ChatKey(recipient, s.countryCode)
	} else {
		phone := protocol.NormalizePhone(to, s.countryCode)
		if phone == "" {
			return nil, ErrInvalidRecipient
		}
		recipient = protocol.JID{User: phone, Server: protocol.ServerUser}
		chatKey = phone + "@" + protocol.ServerUser
	}

	conn, err := s.conns.Conn(sessionID)
	if err != nil {
		return nil, err
	}

	out.QuotedID = opts.QuotedID

	if opts.SimulateTyping && out.Type == protocol.MsgText {
		s.simulateTyping(ctx, conn, recipient, out.Text)
	}

	receipt, err := conn.SendMessage(ctx, recipient, out)
	if err != nil {
		return nil, fmt.Errorf("protocol send: %w", err)
	}

	var tenantID string
	var sess models.Session
	if err := s.db.Where("id = ?", sessionID).First(&sess).Error; err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("tenant lookup failed, realtime event skipped")
	} else {
		tenantID = sess.TenantID
	}

	msg := &models.Message{
		SessionID:    sessionID,
		ExternalID:   receipt.ID,
		ChatKey:      chatKey,
		Direction:    models.DirectionOutbound,
		Type:         modelType,
		Content:      content,
		QuotedID:     opts.QuotedID,
		Status:       models.StatusSent,
		AIGenerated:  opts.AIGenerated,
		AIConfidence: opts.AIConfidence,
		Timestamp:    receipt.Timestamp,
	}
	err = database.WithRetry(func() error {
		return s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "content", "updated_at"}),
		}).Create(msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persist sent message: %w", err)
	}

	s.touchContact(sessionID, chatKey, recipient.IsGroup(), receipt.Timestamp)
	metrics.MessagesSent.WithLabelValues(modelType).Inc()
	if tenantID != "" {
		s.hub.Emit(tenantID, ws.EventMessageSent, msg)
	}
	return msg, nil
}

// simulateTyping publishes a composing indicator for a delay proportional to
// the text length, capped.
func (s *Service) simulateTyping(ctx context.Context, conn protocol.Conn, to protocol.JID, text string) {
	if err := conn.SendPresence(ctx, to, true); err != nil {
		return
	}
	delay := time.Duration(len([]rune(text))) * typingPerRune
	if delay > typingCap {
		delay = typingCap
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
	_ = conn.SendPresence(ctx, to, false)
}

// touchContact records the outgoing activity on the contact aggregate. No
// unread increment and no display-name overwrite: the sender's own profile
// must never rename the contact.
func (s *Service) touchContact(sessionID, chatKey string, isGroup bool, at time.Time) {
	var contact models.Contact
	err := s.db.Where("session_id = ? AND external_id = ?", sessionID, chatKey).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.Create(&models.Contact{
			SessionID:     sessionID,
			ExternalID:    chatKey,
			IsGroup:       isGroup,
			LastMessageAt: &at,
		}).Error
		if err != nil {
			s.log.Debug().Err(err).Str("session", sessionID).Msg("contact create failed")
		}
		return
	}
	if err != nil {
		s.log.Debug().Err(err).Str("session", sessionID).Msg("contact lookup failed")
		return
	}
	if err := s.db.Model(&contact).Update("last_message_at", &at).Error; err != nil {
		s.log.Debug().Err(err).Str("session", sessionID).Msg("contact touch failed")
	}
}
