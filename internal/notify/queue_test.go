package notify

import (
	"context"
	"testing"
	"time"

	"whatsapp-bridge/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestQueue(t *testing.T, sender Sender, checker ConnChecker) (*QueueProcessor, *gorm.DB) {
	t.Helper()
	svc, db := newTestNotify(t, sender, checker)
	q := NewQueueProcessor(svc, 20, time.Millisecond, 0, zerolog.Nop())
	return q, db
}

func seedQueueItem(t *testing.T, db *gorm.DB, item *models.NotificationQueueItem) *models.NotificationQueueItem {
	t.Helper()
	if item.Status == "" {
		item.Status = models.NotificationPending
	}
	if item.ScheduledAt.IsZero() {
		item.ScheduledAt = time.Now().Add(-time.Minute)
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func TestQueueDeliversDueItems(t *testing.T) {
	sender := &fakeSender{}
	checker := &fakeChecker{connected: map[string]bool{}}
	q, db := newTestQueue(t, sender, checker)
	seedConnectedSession(t, db, checker, "s1", "t1")

	seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567", EventType: "ORDER_SHIPPED",
		Content: "rendered body", MaxRetries: 3,
	})

	require.NoError(t, q.ProcessQueue(context.Background()))

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "rendered body", sender.calls[0].text)

	var item models.NotificationQueueItem
	require.NoError(t, db.First(&item).Error)
	assert.Equal(t, models.NotificationSent, item.Status)

	var logRow models.NotificationLog
	require.NoError(t, db.First(&logRow).Error)
	assert.Equal(t, models.NotificationSent, logRow.Status)
}

func TestQueueSkipsFutureItems(t *testing.T) {
	sender := &fakeSender{}
	checker := &fakeChecker{connected: map[string]bool{}}
	q, db := newTestQueue(t, sender, checker)
	seedConnectedSession(t, db, checker, "s1", "t1")

	seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567",
		Content: "later", MaxRetries: 3, ScheduledAt: time.Now().Add(time.Hour),
	})

	require.NoError(t, q.ProcessQueue(context.Background()))
	assert.Empty(t, sender.calls)
}

func TestQueuePriorityOrdering(t *testing.T) {
	sender := &fakeSender{}
	checker := &fakeChecker{connected: map[string]bool{}}
	q, db := newTestQueue(t, sender, checker)
	seedConnectedSession(t, db, checker, "s1", "t1")

	seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567", Content: "low", Priority: 0, MaxRetries: 3,
	})
	seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567", Content: "high", Priority: 5, MaxRetries: 3,
	})

	require.NoError(t, q.ProcessQueue(context.Background()))
	require.Len(t, sender.calls, 2)
	assert.Equal(t, "high", sender.calls[0].text)
	assert.Equal(t, "low", sender.calls[1].text)
}

func TestQueueRetriesThenFailsTerminally(t *testing.T) {
	// No connected session: every attempt fails with a typed reason.
	q, db := newTestQueue(t, &fakeSender{}, &fakeChecker{connected: map[string]bool{}})

	seeded := seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567", Content: "x", MaxRetries: 2,
	})

	// First failure: rescheduled, still pending. retryDelay is zero so the
	// item is due again immediately.
	require.NoError(t, q.ProcessQueue(context.Background()))
	var item models.NotificationQueueItem
	require.NoError(t, db.First(&item, seeded.ID).Error)
	assert.Equal(t, models.NotificationPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)

	// The MaxRetries-th consecutive failure is terminal.
	require.NoError(t, q.ProcessQueue(context.Background()))
	require.NoError(t, db.First(&item, seeded.ID).Error)
	assert.Equal(t, models.NotificationFailed, item.Status)
	assert.Equal(t, item.MaxRetries, item.RetryCount, "retry count never exceeds the ceiling")
	assert.Equal(t, ReasonNoSession, item.LastError)

	// Terminal items are excluded from later polls.
	require.NoError(t, q.ProcessQueue(context.Background()))
	require.NoError(t, db.First(&item, seeded.ID).Error)
	assert.Equal(t, models.NotificationFailed, item.Status)
	assert.Equal(t, item.MaxRetries, item.RetryCount)
}

func TestQueueRecoversAfterTransientFailure(t *testing.T) {
	sender := &fakeSender{}
	checker := &fakeChecker{connected: map[string]bool{}}
	q, db := newTestQueue(t, sender, checker)

	seedQueueItem(t, db, &models.NotificationQueueItem{
		TenantID: "t1", Recipient: "201001234567", Content: "x", MaxRetries: 3,
	})

	// First cycle: no session yet, the item is rescheduled.
	require.NoError(t, q.ProcessQueue(context.Background()))
	var item models.NotificationQueueItem
	require.NoError(t, db.First(&item).Error)
	assert.Equal(t, models.NotificationPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)

	// Session comes online: next cycle delivers.
	seedConnectedSession(t, db, checker, "s1", "t1")
	require.NoError(t, q.ProcessQueue(context.Background()))
	require.NoError(t, db.First(&item).Error)
	assert.Equal(t, models.NotificationSent, item.Status)
	assert.Len(t, sender.calls, 1)
}
