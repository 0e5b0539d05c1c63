package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"whatsapp-bridge/internal/crm"
	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/media"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeConn struct {
	mediaData []byte
	mediaErr  error
}

func (f *fakeConn) Events() <-chan protocol.Event { return nil }

func (f *fakeConn) SendMessage(ctx context.Context, to protocol.JID, msg *protocol.OutgoingMessage) (*protocol.SendReceipt, error) {
	return &protocol.SendReceipt{ID: "X", Timestamp: time.Now()}, nil
}

func (f *fakeConn) SendPresence(ctx context.Context, to protocol.JID, composing bool) error {
	return nil
}

func (f *fakeConn) DownloadMedia(ctx context.Context, ref *protocol.MediaRef) ([]byte, error) {
	return f.mediaData, f.mediaErr
}

func (f *fakeConn) GroupMetadata(ctx context.Context, group protocol.JID) (*protocol.GroupInfo, error) {
	return nil, nil
}

func (f *fakeConn) ChatModify(ctx context.Context, chat protocol.JID, mod protocol.ChatModification) error {
	return nil
}

func (f *fakeConn) ProfilePictureURL(ctx context.Context, jid protocol.JID) (string, error) {
	return "", nil
}

func (f *fakeConn) Logout(ctx context.Context) error { return nil }
func (f *fakeConn) Close() error                     { return nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(tenantID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type recordingAI struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingAI) HandleInbound(ctx context.Context, sess *models.Session, contact *models.Contact, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, msg.ExternalID)
}

func newTestPipeline(t *testing.T) (*Pipeline, *gorm.DB, *recordingEmitter, *recordingAI) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	store, err := media.NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	hub := &recordingEmitter{}
	ai := &recordingAI{}
	p := NewPipeline(db, crm.NewBridge(db, zerolog.Nop()), store, hub, ai, "20", zerolog.Nop())

	require.NoError(t, db.Create(&models.Session{
		ID:       "s1",
		TenantID: "t1",
		Status:   models.SessionConnected,
	}).Error)
	return p, db, hub, ai
}

func inboundText(id, text string) *protocol.IncomingMessage {
	return &protocol.IncomingMessage{
		ID:        id,
		Chat:      protocol.ParseJID("201001234567@s.whatsapp.net"),
		Sender:    protocol.ParseJID("201001234567@s.whatsapp.net"),
		PushName:  "Amira",
		Timestamp: time.Now(),
		Type:      protocol.MsgText,
		Text:      text,
	}
}

func TestInboundTextCreatesFullRecordSet(t *testing.T) {
	p, db, hub, ai := newTestPipeline(t)

	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind:     protocol.UpsertLive,
		Messages: []*protocol.IncomingMessage{inboundText("MSG1", "hello")},
	})

	var msg models.Message
	require.NoError(t, db.Where("session_id = ? AND external_id = ?", "s1", "MSG1").First(&msg).Error)
	assert.Equal(t, models.DirectionInbound, msg.Direction)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "201001234567@s.whatsapp.net", msg.ChatKey)

	var contact models.Contact
	require.NoError(t, db.Where("session_id = ?", "s1").First(&contact).Error)
	assert.Equal(t, 1, contact.UnreadCount)
	assert.Equal(t, "Amira", contact.DisplayName)

	var customer models.Customer
	require.NoError(t, db.Where("tenant_id = ? AND phone = ?", "t1", "201001234567").First(&customer).Error)
	assert.Equal(t, models.CustomerLead, customer.Status)

	var conv models.Conversation
	require.NoError(t, db.Where("customer_id = ?", customer.ID).First(&conv).Error)
	assert.True(t, conv.Active)

	assert.Equal(t, 1, hub.count("message:new"))
	assert.Equal(t, []string{"MSG1"}, ai.calls)
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	p, db, hub, _ := newTestPipeline(t)

	first := inboundText("MSG1", "hello")
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{first},
	})

	// Same external id redelivered with updated content.
	again := inboundText("MSG1", "hello (edited)")
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{again},
	})

	var n int64
	require.NoError(t, db.Model(&models.Message{}).Where("session_id = ?", "s1").Count(&n).Error)
	assert.EqualValues(t, 1, n, "redelivery must not create a second row")

	var msg models.Message
	require.NoError(t, db.Where("external_id = ?", "MSG1").First(&msg).Error)
	assert.Equal(t, "hello (edited)", msg.Content)

	var contact models.Contact
	require.NoError(t, db.Where("session_id = ?", "s1").First(&contact).Error)
	assert.Equal(t, 1, contact.UnreadCount, "redelivery must not bump unread")

	var convMsgs int64
	require.NoError(t, db.Model(&models.ConversationMessage{}).Count(&convMsgs).Error)
	assert.EqualValues(t, 1, convMsgs, "redelivery must not duplicate CRM entries")

	assert.Equal(t, 1, hub.count("message:new"))
}

func TestHistoryAndStaleBatchesDropped(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertHistory, Messages: []*protocol.IncomingMessage{inboundText("OLD1", "backfill")},
	})

	stale := inboundText("OLD2", "stale")
	stale.Timestamp = time.Now().Add(-5 * time.Minute)
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{stale},
	})

	var n int64
	require.NoError(t, db.Model(&models.Message{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestOwnEchoDoesNotBumpUnreadOrRename(t *testing.T) {
	p, db, _, ai := newTestPipeline(t)

	echo := inboundText("MSG1", "my reply")
	echo.FromMe = true
	echo.PushName = "My Own Profile"
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{echo},
	})

	var msg models.Message
	require.NoError(t, db.Where("external_id = ?", "MSG1").First(&msg).Error)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)

	var contact models.Contact
	require.NoError(t, db.Where("session_id = ?", "s1").First(&contact).Error)
	assert.Equal(t, 0, contact.UnreadCount)
	assert.Empty(t, contact.DisplayName, "own profile must not name the contact")

	assert.Empty(t, ai.calls, "own messages never reach the AI hook")
}

func TestStatusBroadcastRoutedSeparately(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	status := inboundText("ST1", "status post")
	status.Chat = protocol.ParseJID("status@broadcast")
	status.Sender = protocol.ParseJID("201001234567@s.whatsapp.net")
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{status},
	})

	var msgs int64
	require.NoError(t, db.Model(&models.Message{}).Count(&msgs).Error)
	assert.EqualValues(t, 0, msgs, "status posts stay out of the conversation flow")

	var row models.StatusUpdate
	require.NoError(t, db.Where("session_id = ?", "s1").First(&row).Error)
	assert.Equal(t, "201001234567", row.PosterID)
	assert.WithinDuration(t, status.Timestamp.Add(24*time.Hour), row.ExpiresAt, time.Second)
}

func TestLinkedIdentityResolvedFromSenderHint(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	msg := inboundText("MSG1", "hi")
	msg.Chat = protocol.ParseJID("9981726354@lid")
	msg.Sender = protocol.ParseJID("9981726354@lid")
	msg.SenderPhone = "+20 100 123 4567"
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{msg},
	})

	var stored models.Message
	require.NoError(t, db.Where("external_id = ?", "MSG1").First(&stored).Error)
	assert.Equal(t, "201001234567@s.whatsapp.net", stored.ChatKey)
}

func TestLinkedIdentityEchoNotSelfAssigned(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	echo := inboundText("MSG1", "mine")
	echo.Chat = protocol.ParseJID("9981726354@lid")
	echo.FromMe = true
	echo.SenderPhone = "201009999999" // local user's own number
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{echo},
	})

	var stored models.Message
	require.NoError(t, db.Where("external_id = ?", "MSG1").First(&stored).Error)
	assert.Equal(t, "9981726354@lid", stored.ChatKey, "outgoing echo must keep the linked key")
}

func TestMediaDownloadedAndStored(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	img := inboundText("IMG1", "")
	img.Type = protocol.MsgImage
	img.Media = &protocol.MediaRef{Kind: protocol.MsgImage, MimeType: "image/jpeg", Caption: "look"}
	p.HandleUpsert(context.Background(), "s1", &fakeConn{mediaData: []byte{0xff, 0xd8}}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{img},
	})

	var stored models.Message
	require.NoError(t, db.Where("external_id = ?", "IMG1").First(&stored).Error)
	assert.Equal(t, models.TypeImage, stored.Type)
	assert.Equal(t, "look", stored.Content)
	assert.Equal(t, "/media/s1/IMG1.jpg", stored.MediaURL)
}

func TestUnrecognizedTypeSkipped(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	odd := inboundText("ODD1", "")
	odd.Type = protocol.MessageType("poll")
	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{odd},
	})

	var n int64
	require.NoError(t, db.Model(&models.Message{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestMarkChatRead(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	p.HandleUpsert(context.Background(), "s1", &fakeConn{}, &protocol.MessagesUpsert{
		Kind: protocol.UpsertLive, Messages: []*protocol.IncomingMessage{inboundText("MSG1", "a"), inboundText("MSG2", "b")},
	})

	require.NoError(t, p.MarkChatRead("s1", "201001234567@s.whatsapp.net"))

	var contact models.Contact
	require.NoError(t, db.Where("session_id = ?", "s1").First(&contact).Error)
	assert.Equal(t, 0, contact.UnreadCount)
}

func TestExpireStatuses(t *testing.T) {
	p, db, _, _ := newTestPipeline(t)

	require.NoError(t, db.Create(&models.StatusUpdate{
		SessionID: "s1", ExternalID: "OLD", Timestamp: time.Now().Add(-25 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.StatusUpdate{
		SessionID: "s1", ExternalID: "FRESH", Timestamp: time.Now(),
		ExpiresAt: time.Now().Add(23 * time.Hour),
	}).Error)

	require.NoError(t, p.ExpireStatuses())

	var rows []models.StatusUpdate
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "FRESH", rows[0].ExternalID)
}
