// Package crm mirrors chat activity into the internal customer/conversation
// model. The mirror is best-effort: the channel-level Message row is the
// primary record, so every error here is logged and swallowed.
package crm

import (
	"context"
	"errors"
	"time"

	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const channelWhatsApp = "whatsapp"

type Bridge struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewBridge(db *gorm.DB, logger zerolog.Logger) *Bridge {
	return &Bridge{db: db, log: logger.With().Str("component", "crm").Logger()}
}

// FindOrCreateCustomer looks a customer up by phone within the tenant and
// creates one (status lead) if absent. A missing avatar is backfilled.
func (b *Bridge) FindOrCreateCustomer(ctx context.Context, tenantID, phone, name, avatarURL string) (*models.Customer, error) {
	var customer models.Customer
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		customer = models.Customer{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Phone:     phone,
			Name:      name,
			AvatarURL: avatarURL,
			Status:    models.CustomerLead,
		}
		if err := b.db.WithContext(ctx).Create(&customer).Error; err != nil {
			return nil, err
		}
		return &customer, nil
	}
	if err != nil {
		return nil, err
	}

	if customer.AvatarURL == "" && avatarURL != "" {
		if err := b.db.WithContext(ctx).Model(&customer).
			Update("avatar_url", avatarURL).Error; err == nil {
			customer.AvatarURL = avatarURL
		}
	}
	return &customer, nil
}

// FindOrCreateConversation finds the active whatsapp conversation for a
// customer or opens a new one.
func (b *Bridge) FindOrCreateConversation(ctx context.Context, tenantID, customerID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := b.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND channel = ? AND active = ?",
			tenantID, customerID, channelWhatsApp, true).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conv = models.Conversation{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			CustomerID: customerID,
			Channel:    channelWhatsApp,
			Active:     true,
		}
		if err := b.db.WithContext(ctx).Create(&conv).Error; err != nil {
			return nil, err
		}
		return &conv, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// SyncMessage reconciles the identity and appends the message to the
// tenant's unified timeline. Never fails the caller.
func (b *Bridge) SyncMessage(ctx context.Context, tenantID, phone, name, avatarURL, direction, msgType, content, externalID string, sentAt time.Time) {
	if phone == "" {
		return
	}
	customer, err := b.FindOrCreateCustomer(ctx, tenantID, phone, name, avatarURL)
	if err != nil {
		b.log.Warn().Err(err).Str("tenant", tenantID).Str("phone", phone).Msg("customer sync failed")
		return
	}
	conv, err := b.FindOrCreateConversation(ctx, tenantID, customer.ID)
	if err != nil {
		b.log.Warn().Err(err).Str("tenant", tenantID).Str("customer", customer.ID).Msg("conversation sync failed")
		return
	}

	row := models.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Direction:      direction,
		Type:           msgType,
		Content:        content,
		ExternalID:     externalID,
		SentAt:         sentAt,
	}
	err = database.WithRetry(func() error {
		return b.db.WithContext(ctx).Create(&row).Error
	})
	if err != nil {
		b.log.Warn().Err(err).Str("conversation", conv.ID).Msg("timeline append failed")
		return
	}

	updates := map[string]any{
		"last_message_at": &sentAt,
		"preview":         preview(content),
	}
	if direction == models.DirectionInbound {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
	}
	if err := b.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
		b.log.Warn().Err(err).Str("conversation", conv.ID).Msg("conversation bump failed")
	}
}

func preview(content string) string {
	const max = 120
	runes := []rune(content)
	if len(runes) > max {
		return string(runes[:max])
	}
	return content
}
