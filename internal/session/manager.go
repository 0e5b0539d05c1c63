// Package session owns the connection lifecycle for every bridge session:
// credential persistence, the live-connection registry, reconnect policy and
// dispatch of protocol events into the rest of the system.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"
	"whatsapp-bridge/internal/ws"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const defaultReconnectDelay = 5 * time.Second

var (
	// ErrNotFound is returned for operations on unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrNotConnected is returned when an operation requires a live,
	// connected session.
	ErrNotConnected = errors.New("session not connected")
)

// InboundHandler receives live message batches for a session. Implemented by
// the ingestion pipeline.
type InboundHandler interface {
	HandleUpsert(ctx context.Context, sessionID string, conn protocol.Conn, ev *protocol.MessagesUpsert)
}

// entry is the registry slot for one session. conn is the single current
// connection object; events produced by any other connection are stale.
type entry struct {
	tenantID string
	conn     protocol.Conn
	status   models.SessionStatus
	qr       string
}

// Manager owns the in-memory session registry and drives the
// connect/reconnect/close/delete lifecycle. It is the only writer of the
// registry and of Session.Status.
type Manager struct {
	db      *gorm.DB
	dialer  protocol.Dialer
	creds   *CredentialStore
	hub     ws.Emitter
	inbound InboundHandler
	log     zerolog.Logger

	reconnectDelay time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

func NewManager(db *gorm.DB, dialer protocol.Dialer, creds *CredentialStore, hub ws.Emitter, inbound InboundHandler, logger zerolog.Logger) *Manager {
	return &Manager{
		db:             db,
		dialer:         dialer,
		creds:          creds,
		hub:            hub,
		inbound:        inbound,
		log:            logger.With().Str("component", "session").Logger(),
		reconnectDelay: defaultReconnectDelay,
		entries:        make(map[string]*entry),
	}
}

// SetInbound wires the ingestion pipeline. Must be called before the first
// Create or RestoreAll; it exists because the pipeline's construction depends
// on services that in turn depend on the manager.
func (m *Manager) SetInbound(h InboundHandler) {
	m.inbound = h
}

// Create opens a connection for the session and registers it. A session id
// already present in the registry short-circuits: at most one connection
// object is ever current per id.
func (m *Manager) Create(ctx context.Context, sessionID, tenantID string) error {
	m.mu.Lock()
	if _, ok := m.entries[sessionID]; ok {
		m.mu.Unlock()
		return nil
	}
	// Reserve the slot before dialing so a concurrent Create short-circuits.
	e := &entry{tenantID: tenantID, status: models.SessionConnecting}
	m.entries[sessionID] = e
	m.mu.Unlock()

	if err := m.ensureRow(sessionID, tenantID); err != nil {
		m.remove(sessionID)
		return err
	}

	auth, err := m.creds.Load(sessionID)
	if err != nil {
		m.remove(sessionID)
		m.setStatus(sessionID, models.SessionDisconnected, nil)
		return err
	}

	conn, err := m.dialer.Dial(ctx, auth)
	if err != nil {
		m.remove(sessionID)
		m.setStatus(sessionID, models.SessionDisconnected, nil)
		return fmt.Errorf("dial: %w", err)
	}

	m.mu.Lock()
	e.conn = conn
	m.mu.Unlock()

	m.setStatus(sessionID, models.SessionConnecting, nil)
	m.log.Info().Str("session", sessionID).Str("tenant", tenantID).Msg("session connecting")

	go m.dispatchLoop(sessionID, tenantID, conn)
	return nil
}

// RestoreAll re-creates every session that was live before the last restart.
func (m *Manager) RestoreAll(ctx context.Context) error {
	var sessions []models.Session
	err := database.WithRetry(func() error {
		return m.db.Where("status IN ?", []models.SessionStatus{
			models.SessionConnected, models.SessionDisconnected,
		}).Find(&sessions).Error
	})
	if err != nil {
		return fmt.Errorf("list restorable sessions: %w", err)
	}
	for _, s := range sessions {
		if err := m.Create(ctx, s.ID, s.TenantID); err != nil {
			m.log.Error().Err(err).Str("session", s.ID).Msg("restore failed")
		}
	}
	m.log.Info().Int("count", len(sessions)).Msg("session restore complete")
	return nil
}

// Close logs the session out best-effort, removes it from the registry and
// marks it disconnected.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	e := m.take(sessionID)
	if e != nil && e.conn != nil {
		if err := e.conn.Logout(ctx); err != nil {
			m.log.Debug().Err(err).Str("session", sessionID).Msg("logout failed, closing anyway")
		}
		_ = e.conn.Close()
	}
	if e != nil && e.status == models.SessionConnected {
		metrics.SessionsConnected.Dec()
	}
	now := time.Now()
	m.setStatus(sessionID, models.SessionDisconnected, map[string]any{"last_disconnected_at": &now})
	return nil
}

// Delete closes the session and erases its credential material and store
// records permanently.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	var sess models.Session
	if err := m.db.Where("id = ?", sessionID).First(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := m.Close(ctx, sessionID); err != nil {
		return err
	}
	if err := m.creds.Delete(sessionID); err != nil {
		m.log.Error().Err(err).Str("session", sessionID).Msg("credential wipe failed")
	}
	err := database.WithRetry(func() error {
		return m.db.Where("id = ?", sessionID).Delete(&models.Session{}).Error
	})
	if err != nil {
		return err
	}
	m.log.Info().Str("session", sessionID).Msg("session deleted")
	return nil
}

// Conn returns the current connection for a session if it is connected.
func (m *Manager) Conn(sessionID string) (protocol.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || e.conn == nil || e.status != models.SessionConnected {
		return nil, ErrNotConnected
	}
	return e.conn, nil
}

// Connected reports whether the session currently holds an open connection.
func (m *Manager) Connected(sessionID string) bool {
	_, err := m.Conn(sessionID)
	return err == nil
}

// QR returns the most recent pairing code payload for a session awaiting
// pairing.
func (m *Manager) QR(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return e.qr, nil
}

// --- dispatch ---

// dispatchLoop consumes the event stream of one connection. Every event is
// first checked against the registry: a connection that has been superseded
// by a reconnect must not mutate any state.
func (m *Manager) dispatchLoop(sessionID, tenantID string, conn protocol.Conn) {
	ctx := context.Background()
	for ev := range conn.Events() {
		if !m.isCurrent(sessionID, conn) {
			m.log.Debug().Str("session", sessionID).Msg("discarding event from superseded connection")
			continue
		}
		switch e := ev.(type) {
		case *protocol.ConnectionUpdate:
			m.handleConnectionUpdate(ctx, sessionID, tenantID, conn, e)
		case *protocol.MessagesUpsert:
			if m.inbound != nil {
				m.inbound.HandleUpsert(ctx, sessionID, conn, e)
			}
		case *protocol.MessageStatusUpdate:
			m.handleMessageStatus(sessionID, tenantID, e)
		case *protocol.PresenceUpdate:
			m.hub.Emit(tenantID, ws.EventPresence, map[string]any{
				"session_id": sessionID,
				"chat":       e.Chat.String(),
				"presence":   e.Presence,
			})
		case *protocol.CallUpdate:
			m.hub.Emit(tenantID, ws.EventCallUpdate, map[string]any{
				"session_id": sessionID,
				"from":       e.From.String(),
				"call_id":    e.CallID,
				"status":     e.Status,
				"video":      e.Video,
			})
		case *protocol.ContactsUpdate:
			m.handleContacts(sessionID, e)
		case *protocol.GroupsUpdate:
			m.handleGroups(sessionID, e)
		case *protocol.CredsUpdate:
			// Login/refresh: flush immediately, bypassing the debounce.
			m.creds.SetCredentials(sessionID, e.Creds)
			if err := m.creds.SaveCredential(sessionID); err != nil {
				m.log.Error().Err(err).Str("session", sessionID).Msg("credential save failed")
			}
		case *protocol.KeysUpdate:
			m.creds.Set(sessionID, e.Keys)
		default:
			m.log.Debug().Str("session", sessionID).Msgf("unhandled protocol event %T", ev)
		}
	}
}

func (m *Manager) handleConnectionUpdate(ctx context.Context, sessionID, tenantID string, conn protocol.Conn, ev *protocol.ConnectionUpdate) {
	if ev.QRCode != "" || ev.PairingCode != "" {
		m.mu.Lock()
		if e, ok := m.entries[sessionID]; ok {
			e.status = models.SessionQRPending
			e.qr = ev.QRCode
		}
		m.mu.Unlock()
		m.setStatus(sessionID, models.SessionQRPending, nil)
		m.hub.Emit(tenantID, ws.EventQR, map[string]any{
			"session_id":   sessionID,
			"qr":           ev.QRCode,
			"pairing_code": ev.PairingCode,
		})
		m.log.Info().Str("session", sessionID).Msg("pairing code issued")
		return
	}

	switch ev.State {
	case protocol.ConnOpen:
		m.handleOpen(ctx, sessionID, tenantID, conn)
	case protocol.ConnClosed:
		m.handleClose(sessionID, tenantID, ev.Reason, ev.Err)
	}
}

func (m *Manager) handleOpen(ctx context.Context, sessionID, tenantID string, conn protocol.Conn) {
	var phone string
	if auth, err := m.creds.Load(sessionID); err == nil {
		phone = protocol.NormalizePhone(auth.Creds.Me, "")
	}

	m.mu.Lock()
	if e, ok := m.entries[sessionID]; ok {
		e.status = models.SessionConnected
		e.qr = ""
	}
	m.mu.Unlock()

	now := time.Now()
	m.setStatus(sessionID, models.SessionConnected, map[string]any{
		"phone_number":      phone,
		"last_connected_at": &now,
	})
	metrics.SessionsConnected.Inc()

	go m.syncProfile(ctx, sessionID, conn, phone)

	m.hub.Emit(tenantID, ws.EventConnection, map[string]any{
		"session_id": sessionID,
		"status":     models.SessionConnected,
		"phone":      phone,
	})
	m.log.Info().Str("session", sessionID).Str("phone", phone).Msg("session connected")
}

func (m *Manager) handleClose(sessionID, tenantID string, reason protocol.DisconnectReason, cause error) {
	e := m.take(sessionID)
	if e != nil && e.status == models.SessionConnected {
		metrics.SessionsConnected.Dec()
	}
	now := time.Now()

	switch {
	case reason.IsLoggedOut():
		// Device unlinked remotely: credentials are dead, do not reconnect.
		if err := m.creds.Delete(sessionID); err != nil {
			m.log.Error().Err(err).Str("session", sessionID).Msg("credential wipe failed")
		}
		m.setStatus(sessionID, models.SessionLoggedOut, map[string]any{"last_disconnected_at": &now})
		m.hub.Emit(tenantID, ws.EventConnection, map[string]any{
			"session_id": sessionID,
			"status":     models.SessionLoggedOut,
		})
		m.log.Warn().Str("session", sessionID).Msg("logged out, session terminal")

	case reason.IsCorruption():
		// Corrupt credential material. Reconnecting would fail the same way
		// every time, so tear the session down instead of looping.
		if e != nil && e.conn != nil {
			_ = e.conn.Close()
		}
		if err := m.creds.Delete(sessionID); err != nil {
			m.log.Error().Err(err).Str("session", sessionID).Msg("credential wipe failed")
		}
		m.setStatus(sessionID, models.SessionDeleted, map[string]any{"last_disconnected_at": &now})
		m.hub.Emit(tenantID, ws.EventConnection, map[string]any{
			"session_id": sessionID,
			"status":     models.SessionDeleted,
			"reason":     reason.String(),
		})
		m.log.Error().Err(cause).Str("session", sessionID).Str("reason", reason.String()).
			Msg("credential corruption, session force-deleted")

	default:
		m.setStatus(sessionID, models.SessionDisconnected, map[string]any{"last_disconnected_at": &now})
		m.hub.Emit(tenantID, ws.EventConnection, map[string]any{
			"session_id": sessionID,
			"status":     models.SessionDisconnected,
			"reason":     reason.String(),
		})
		m.log.Warn().Str("session", sessionID).Str("reason", reason.String()).
			Dur("retry_in", m.reconnectDelay).Msg("disconnected, reconnect scheduled")
		metrics.ReconnectAttempts.Inc()
		time.AfterFunc(m.reconnectDelay, func() {
			if err := m.Create(context.Background(), sessionID, tenantID); err != nil {
				m.log.Error().Err(err).Str("session", sessionID).Msg("reconnect failed")
			}
		})
	}
}

func (m *Manager) handleMessageStatus(sessionID, tenantID string, ev *protocol.MessageStatusUpdate) {
	err := m.db.Model(&models.Message{}).
		Where("session_id = ? AND external_id = ?", sessionID, ev.MessageID).
		Update("status", ev.Status).Error
	if err != nil {
		m.log.Error().Err(err).Str("session", sessionID).Str("message", ev.MessageID).
			Msg("status update failed")
		return
	}
	m.hub.Emit(tenantID, ws.EventMessageStatus, map[string]any{
		"session_id": sessionID,
		"message_id": ev.MessageID,
		"status":     ev.Status,
	})
}

func (m *Manager) handleContacts(sessionID string, ev *protocol.ContactsUpdate) {
	for _, c := range ev.Contacts {
		key := protocol.ChatKey(c.JID, "")
		if key == "" {
			continue
		}
		updates := map[string]any{}
		if c.Name != "" {
			updates["display_name"] = c.Name
		}
		if c.AvatarURL != "" {
			updates["avatar_url"] = c.AvatarURL
		}
		if len(updates) == 0 {
			continue
		}
		if err := m.db.Model(&models.Contact{}).
			Where("session_id = ? AND external_id = ?", sessionID, key).
			Updates(updates).Error; err != nil {
			m.log.Debug().Err(err).Str("session", sessionID).Msg("contact update failed")
		}
	}
}

func (m *Manager) handleGroups(sessionID string, ev *protocol.GroupsUpdate) {
	for _, g := range ev.Groups {
		if g.Subject == "" {
			continue
		}
		if err := m.db.Model(&models.Contact{}).
			Where("session_id = ? AND external_id = ?", sessionID, protocol.ChatKey(g.JID, "")).
			Update("display_name", g.Subject).Error; err != nil {
			m.log.Debug().Err(err).Str("session", sessionID).Msg("group subject update failed")
		}
	}
}

// syncProfile pulls the session's own avatar. Best-effort: failures are
// logged and forgotten.
func (m *Manager) syncProfile(ctx context.Context, sessionID string, conn protocol.Conn, phone string) {
	if phone == "" {
		return
	}
	url, err := conn.ProfilePictureURL(ctx, protocol.UserJID(phone, ""))
	if err != nil || url == "" {
		if err != nil {
			m.log.Debug().Err(err).Str("session", sessionID).Msg("profile sync failed")
		}
		return
	}
	if err := m.db.Model(&models.Session{}).Where("id = ?", sessionID).
		Update("avatar_url", url).Error; err != nil {
		m.log.Debug().Err(err).Str("session", sessionID).Msg("avatar update failed")
	}
}

// --- registry helpers ---

// isCurrent is the stale-event guard: only the connection object registered
// for the id may act on shared state.
func (m *Manager) isCurrent(sessionID string, conn protocol.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	return ok && e.conn == conn
}

// take removes and returns the registry entry, or nil.
func (m *Manager) take(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[sessionID]
	delete(m.entries, sessionID)
	return e
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
}

func (m *Manager) ensureRow(sessionID, tenantID string) error {
	return database.WithRetry(func() error {
		return m.db.Where(models.Session{ID: sessionID}).
			Attrs(models.Session{
				TenantID: tenantID,
				Status:   models.SessionConnecting,
				AIMode:   models.AIModeOff,
			}).
			FirstOrCreate(&models.Session{}).Error
	})
}

func (m *Manager) setStatus(sessionID string, status models.SessionStatus, extra map[string]any) {
	updates := map[string]any{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	err := database.WithRetry(func() error {
		return m.db.Model(&models.Session{}).Where("id = ?", sessionID).Updates(updates).Error
	})
	if err != nil {
		m.log.Error().Err(err).Str("session", sessionID).Str("status", string(status)).
			Msg("status persist failed")
	}
}
