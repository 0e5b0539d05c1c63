package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- fakes ---

type fakeConn struct {
	events chan protocol.Event

	mu     sync.Mutex
	closed bool
	sent   []*protocol.OutgoingMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan protocol.Event, 16)}
}

func (f *fakeConn) Events() <-chan protocol.Event { return f.events }

func (f *fakeConn) SendMessage(ctx context.Context, to protocol.JID, msg *protocol.OutgoingMessage) (*protocol.SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &protocol.SendReceipt{ID: "3EB0TEST", Timestamp: time.Now()}, nil
}

func (f *fakeConn) SendPresence(ctx context.Context, to protocol.JID, composing bool) error {
	return nil
}

func (f *fakeConn) DownloadMedia(ctx context.Context, ref *protocol.MediaRef) ([]byte, error) {
	return []byte("media"), nil
}

func (f *fakeConn) GroupMetadata(ctx context.Context, group protocol.JID) (*protocol.GroupInfo, error) {
	return &protocol.GroupInfo{JID: group}, nil
}

func (f *fakeConn) ChatModify(ctx context.Context, chat protocol.JID, mod protocol.ChatModification) error {
	return nil
}

func (f *fakeConn) ProfilePictureURL(ctx context.Context, jid protocol.JID) (string, error) {
	return "", nil
}

func (f *fakeConn) Logout(ctx context.Context) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, auth *protocol.AuthState) (protocol.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		c := newFakeConn()
		d.conns = append(d.conns, c)
		return c, nil
	}
	c := d.conns[0]
	if len(d.conns) > 1 {
		d.conns = d.conns[1:]
	}
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(tenantID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type recordingInbound struct {
	mu      sync.Mutex
	batches int
}

func (r *recordingInbound) HandleUpsert(ctx context.Context, sessionID string, conn protocol.Conn, ev *protocol.MessagesUpsert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
}

func (r *recordingInbound) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

// --- helpers ---

func newTestManager(t *testing.T, db *gorm.DB, dialer *fakeDialer, inbound InboundHandler) (*Manager, *CredentialStore) {
	t.Helper()
	creds := NewCredentialStore(db, zerolog.Nop())
	m := NewManager(db, dialer, creds, &recordingEmitter{}, inbound, zerolog.Nop())
	m.reconnectDelay = 30 * time.Millisecond
	return m, creds
}

func sessionStatus(t *testing.T, db *gorm.DB, id string) models.SessionStatus {
	t.Helper()
	var sess models.Session
	require.NoError(t, db.Where("id = ?", id).First(&sess).Error)
	return sess.Status
}

// --- tests ---

func TestDuplicateCreateShortCircuits(t *testing.T) {
	db := testDB(t)
	dialer := &fakeDialer{}
	m, _ := newTestManager(t, db, dialer, &recordingInbound{})

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	require.NoError(t, m.Create(context.Background(), "s1", "t1"))

	assert.Equal(t, 1, dialer.dials())
}

func TestCreateWithUnreadableCredentialsMarksDisconnected(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.SessionCredential{
		SessionID: "s1",
		Data:      []byte("{not json"),
	}).Error)
	dialer := &fakeDialer{}
	m, _ := newTestManager(t, db, dialer, &recordingInbound{})

	err := m.Create(context.Background(), "s1", "t1")
	require.Error(t, err)
	assert.Equal(t, 0, dialer.dials())
	assert.Equal(t, models.SessionDisconnected, sessionStatus(t, db, "s1"))

	_, connErr := m.Conn("s1")
	assert.ErrorIs(t, connErr, ErrNotConnected)
}

func TestOpenEventMarksConnected(t *testing.T) {
	db := testDB(t)
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m, _ := newTestManager(t, db, dialer, &recordingInbound{})

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	_, err := m.Conn("s1")
	assert.ErrorIs(t, err, ErrNotConnected)

	conn.events <- &protocol.ConnectionUpdate{State: protocol.ConnOpen}
	require.Eventually(t, func() bool { return m.Connected("s1") }, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.SessionConnected, sessionStatus(t, db, "s1"))

	got, err := m.Conn("s1")
	require.NoError(t, err)
	assert.Same(t, protocol.Conn(conn), got)
}

func TestStaleEventsFromSupersededConnDiscarded(t *testing.T) {
	db := testDB(t)
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	inbound := &recordingInbound{}
	m, _ := newTestManager(t, db, dialer, inbound)

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	conn1.events <- &protocol.ConnectionUpdate{State: protocol.ConnOpen}
	require.Eventually(t, func() bool { return m.Connected("s1") }, time.Second, 10*time.Millisecond)

	// Transient drop: the manager schedules a reconnect that dials conn2.
	conn1.events <- &protocol.ConnectionUpdate{State: protocol.ConnClosed, Reason: protocol.ReasonConnectionLost}
	require.Eventually(t, func() bool { return dialer.dials() == 2 }, time.Second, 10*time.Millisecond)
	conn2.events <- &protocol.ConnectionUpdate{State: protocol.ConnOpen}
	require.Eventually(t, func() bool { return m.Connected("s1") }, time.Second, 10*time.Millisecond)

	// A late batch from the dead connection must not reach the pipeline.
	conn1.events <- &protocol.MessagesUpsert{Kind: protocol.UpsertLive}
	conn2.events <- &protocol.MessagesUpsert{Kind: protocol.UpsertLive}
	require.Eventually(t, func() bool { return inbound.count() == 1 }, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, inbound.count(), "superseded connection mutated state")
}

func TestCorruptionForceDeletesWithoutReconnect(t *testing.T) {
	db := testDB(t)
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m, creds := newTestManager(t, db, dialer, &recordingInbound{})

	creds.SetCredentials("s1", protocol.Credentials{Me: "201001234567@s.whatsapp.net", Registered: true})
	require.NoError(t, creds.SaveCredential("s1"))

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	conn.events <- &protocol.ConnectionUpdate{State: protocol.ConnOpen}
	require.Eventually(t, func() bool { return m.Connected("s1") }, time.Second, 10*time.Millisecond)

	conn.events <- &protocol.ConnectionUpdate{State: protocol.ConnClosed, Reason: protocol.ReasonBadMAC}
	require.Eventually(t, func() bool {
		return sessionStatus(t, db, "s1") == models.SessionDeleted
	}, time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 0, credentialRows(t, db, "s1"), "credentials must be wiped")
	assert.False(t, m.Connected("s1"))

	// Well past the reconnect delay: no new connection attempt.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.dials())
}

func TestLoggedOutIsTerminal(t *testing.T) {
	db := testDB(t)
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m, creds := newTestManager(t, db, dialer, &recordingInbound{})

	creds.SetCredentials("s1", protocol.Credentials{Me: "201001234567@s.whatsapp.net"})
	require.NoError(t, creds.SaveCredential("s1"))

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	conn.events <- &protocol.ConnectionUpdate{State: protocol.ConnOpen}
	require.Eventually(t, func() bool { return m.Connected("s1") }, time.Second, 10*time.Millisecond)

	conn.events <- &protocol.ConnectionUpdate{State: protocol.ConnClosed, Reason: protocol.ReasonLoggedOut}
	require.Eventually(t, func() bool {
		return sessionStatus(t, db, "s1") == models.SessionLoggedOut
	}, time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 0, credentialRows(t, db, "s1"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.dials())
}

func TestDeleteErasesSession(t *testing.T) {
	db := testDB(t)
	dialer := &fakeDialer{}
	m, creds := newTestManager(t, db, dialer, &recordingInbound{})

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	creds.SetCredentials("s1", protocol.Credentials{Me: "x"})
	require.NoError(t, creds.SaveCredential("s1"))

	require.NoError(t, m.Delete(context.Background(), "s1"))

	var n int64
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", "s1").Count(&n).Error)
	assert.EqualValues(t, 0, n)
	assert.EqualValues(t, 0, credentialRows(t, db, "s1"))

	assert.ErrorIs(t, m.Delete(context.Background(), "s1"), ErrNotFound)
}

func TestQRExposedWhilePairing(t *testing.T) {
	db := testDB(t)
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m, _ := newTestManager(t, db, dialer, &recordingInbound{})

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	conn.events <- &protocol.ConnectionUpdate{QRCode: "2@abc123"}

	require.Eventually(t, func() bool {
		qr, err := m.QR("s1")
		return err == nil && qr == "2@abc123"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.SessionQRPending, sessionStatus(t, db, "s1"))
}

func TestCredsUpdateFlushedImmediately(t *testing.T) {
	db := testDB(t)
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	m, _ := newTestManager(t, db, dialer, &recordingInbound{})

	require.NoError(t, m.Create(context.Background(), "s1", "t1"))
	conn.events <- &protocol.CredsUpdate{Creds: protocol.Credentials{Me: "201001234567@s.whatsapp.net", Registered: true}}

	require.Eventually(t, func() bool {
		return credentialRows(t, db, "s1") == 1
	}, time.Second, 10*time.Millisecond)
}
