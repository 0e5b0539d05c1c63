package notify

import (
	"context"
	"time"

	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// QueueProcessor drains due notification queue items in bounded batches. An
// inter-item rate limit respects external sending constraints; failures are
// rescheduled until the retry ceiling, then marked terminally FAILED.
type QueueProcessor struct {
	svc        *Service
	limiter    *rate.Limiter
	batchSize  int
	retryDelay time.Duration
	log        zerolog.Logger
}

func NewQueueProcessor(svc *Service, batchSize int, itemInterval, retryDelay time.Duration, logger zerolog.Logger) *QueueProcessor {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &QueueProcessor{
		svc:        svc,
		limiter:    rate.NewLimiter(rate.Every(itemInterval), 1),
		batchSize:  batchSize,
		retryDelay: retryDelay,
		log:        logger.With().Str("component", "notify_queue").Logger(),
	}
}

// ProcessQueue handles one polling cycle: fetch due items ordered by priority
// then schedule time, and attempt each in turn.
func (q *QueueProcessor) ProcessQueue(ctx context.Context) error {
	var items []models.NotificationQueueItem
	err := q.svc.db.
		Where("status = ? AND scheduled_at <= ?", models.NotificationPending, time.Now()).
		Order("priority desc").
		Order("scheduled_at asc").
		Limit(q.batchSize).
		Find(&items).Error
	if err != nil {
		return err
	}

	for i := range items {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
		q.processItem(ctx, &items[i])
	}
	return nil
}

func (q *QueueProcessor) processItem(ctx context.Context, item *models.NotificationQueueItem) {
	if err := q.svc.db.Model(item).
		Update("status", models.NotificationProcessing).Error; err != nil {
		q.log.Warn().Err(err).Uint("item", item.ID).Msg("claim failed")
		return
	}

	settings := q.svc.tenantSettings(item.TenantID)
	sessionID, reason := q.svc.resolveSession(item.TenantID, settings)
	if reason != "" {
		q.retryOrFail(item, reason)
		return
	}

	msg, err := q.svc.sender.SendText(ctx, sessionID, item.Recipient, item.Content, nil)
	if err != nil {
		q.retryOrFail(item, err.Error())
		return
	}

	if err := q.svc.db.Model(item).Updates(map[string]any{
		"status":     models.NotificationSent,
		"last_error": "",
	}).Error; err != nil {
		q.log.Warn().Err(err).Uint("item", item.ID).Msg("completion update failed")
	}
	metrics.NotificationsDelivered.WithLabelValues(models.NotificationSent).Inc()
	q.svc.db.Create(&models.NotificationLog{
		TenantID:    item.TenantID,
		SessionID:   sessionID,
		Recipient:   item.Recipient,
		Category:    item.Category,
		EventType:   item.EventType,
		Content:     item.Content,
		Status:      models.NotificationSent,
		MessageID:   msg.ExternalID,
		RelatedType: item.RelatedType,
		RelatedID:   item.RelatedID,
	})
}

// retryOrFail reschedules the item a fixed delay later, or marks it terminally
// FAILED once the retry ceiling is reached.
func (q *QueueProcessor) retryOrFail(item *models.NotificationQueueItem, cause string) {
	item.RetryCount++
	if item.RetryCount >= item.MaxRetries {
		if err := q.svc.db.Model(item).Updates(map[string]any{
			"status":      models.NotificationFailed,
			"retry_count": item.RetryCount,
			"last_error":  cause,
		}).Error; err != nil {
			q.log.Warn().Err(err).Uint("item", item.ID).Msg("terminal update failed")
		}
		metrics.NotificationsDelivered.WithLabelValues(models.NotificationFailed).Inc()
		q.log.Warn().
			Uint("item", item.ID).
			Str("tenant", item.TenantID).
			Str("cause", cause).
			Msg("notification exhausted retries")
		return
	}

	if err := q.svc.db.Model(item).Updates(map[string]any{
		"status":       models.NotificationPending,
		"retry_count":  item.RetryCount,
		"last_error":   cause,
		"scheduled_at": time.Now().Add(q.retryDelay),
	}).Error; err != nil {
		q.log.Warn().Err(err).Uint("item", item.ID).Msg("reschedule failed")
	}
}
