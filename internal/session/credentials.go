package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/metrics"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultDebounce = time.Second

// CredentialStore caches per-session credential state in memory and persists
// it to the shared store. Key writes are debounced: rapid Set calls within
// the window coalesce into one store write; SaveCredential is the separate
// immediate path used once per login event.
type CredentialStore struct {
	db  *gorm.DB
	log zerolog.Logger

	debounce time.Duration

	mu         sync.Mutex
	cache      map[string]*protocol.AuthState
	timers     map[string]*time.Timer
	permlogged map[string]bool // permission-denied already logged for this id
}

func NewCredentialStore(db *gorm.DB, logger zerolog.Logger) *CredentialStore {
	return &CredentialStore{
		db:         db,
		log:        logger.With().Str("component", "credentials").Logger(),
		debounce:   defaultDebounce,
		cache:      make(map[string]*protocol.AuthState),
		timers:     make(map[string]*time.Timer),
		permlogged: nil,
	}
}

// Load returns the credential state for a session, reading through to the
// store on cache miss. A session that never paired gets a fresh empty state.
func (cs *CredentialStore) Load(sessionID string) (*protocol.AuthState, error) {
	cs.mu.Lock()
	if st, ok := cs.cache[sessionID]; ok {
		cs.mu.Unlock()
		return st, nil
	}
	cs.mu.Unlock()

	var rec models.SessionCredential
	err := database.WithRetry(func() error {
		return cs.db.Where("session_id = ?", sessionID).First(&rec).Error
	})
	var st *protocol.AuthState
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		st = protocol.NewAuthState()
	case err != nil:
		return nil, fmt.Errorf("load credentials: %w", err)
	default:
		st, err = decodeAuthState(rec.Data)
		if err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}

	cs.mu.Lock()
	// Another goroutine may have loaded meanwhile; keep the first.
	if existing, ok := cs.cache[sessionID]; ok {
		st = existing
	} else {
		cs.cache[sessionID] = st
	}
	cs.mu.Unlock()
	return st, nil
}

// Get returns the cached keys of one category for the requested ids. Missing
// ids are simply absent from the result.
func (cs *CredentialStore) Get(sessionID, category string, ids []string) map[string][]byte {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make(map[string][]byte, len(ids))
	st, ok := cs.cache[sessionID]
	if !ok {
		return out
	}
	byID := st.Keys[category]
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out[id] = v
		}
	}
	return out
}

// Set merges key material into the cache and schedules a debounced
// write-back. A pending timer is cancelled and rescheduled on every call.
func (cs *CredentialStore) Set(sessionID string, keys map[string]map[string][]byte) {
	cs.mu.Lock()
	st, ok := cs.cache[sessionID]
	if !ok {
		st = protocol.NewAuthState()
		cs.cache[sessionID] = st
	}
	for category, byID := range keys {
		dst := st.Keys[category]
		if dst == nil {
			dst = make(map[string][]byte, len(byID))
			st.Keys[category] = dst
		}
		for id, key := range byID {
			if key == nil {
				delete(dst, id)
				continue
			}
			dst[id] = key
		}
	}

	if t, ok := cs.timers[sessionID]; ok {
		t.Stop()
	}
	cs.timers[sessionID] = time.AfterFunc(cs.debounce, func() {
		cs.mu.Lock()
		delete(cs.timers, sessionID)
		cs.mu.Unlock()
		cs.flush(sessionID)
	})
	cs.mu.Unlock()
}

// SetCredentials replaces the registration credentials in the cache. The
// caller decides when to flush (SaveCredential on login).
func (cs *CredentialStore) SetCredentials(sessionID string, creds protocol.Credentials) {
	cs.mu.Lock()
	st, ok := cs.cache[sessionID]
	if !ok {
		st = protocol.NewAuthState()
		cs.cache[sessionID] = st
	}
	st.Creds = creds
	cs.mu.Unlock()
}

// SaveCredential flushes the session's state immediately, bypassing and
// cancelling any pending debounce timer.
func (cs *CredentialStore) SaveCredential(sessionID string) error {
	cs.mu.Lock()
	if t, ok := cs.timers[sessionID]; ok {
		t.Stop()
		delete(cs.timers, sessionID)
	}
	cs.mu.Unlock()
	return cs.flush(sessionID)
}

// Delete wipes the session's credential state from cache and store.
func (cs *CredentialStore) Delete(sessionID string) error {
	cs.mu.Lock()
	if t, ok := cs.timers[sessionID]; ok {
		t.Stop()
		delete(cs.timers, sessionID)
	}
	delete(cs.cache, sessionID)
	delete(cs.permlogged, sessionID)
	cs.mu.Unlock()

	return database.WithRetry(func() error {
		return cs.db.Where("session_id = ?", sessionID).
			Delete(&models.SessionCredential{}).Error
	})
}

// flush encodes and upserts the credential row. Permission-denied failures
// are logged once per session and swallowed; the cache stays authoritative.
// Other failures are logged and retried naturally by later Set calls.
func (cs *CredentialStore) flush(sessionID string) error {
	cs.mu.Lock()
	st, ok := cs.cache[sessionID]
	if !ok {
		cs.mu.Unlock()
		return nil
	}
	data, err := encodeAuthState(st)
	cs.mu.Unlock()
	if err != nil {
		cs.log.Error().Err(err).Str("session", sessionID).Msg("encode credentials")
		return err
	}

	err = database.WithRetry(func() error {
		return cs.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&models.SessionCredential{
			SessionID: sessionID,
			Data:      data,
			UpdatedAt: time.Now(),
		}).Error
	})
	if err != nil {
		if database.IsPermissionDenied(err) {
			cs.mu.Lock()
			logged := cs.permlogged[sessionID]
			if !logged {
				if cs.permlogged == nil {
					cs.permlogged = make(map[string]bool)
				}
				cs.permlogged[sessionID] = true
			}
			cs.mu.Unlock()
			if !logged {
				cs.log.Warn().Str("session", sessionID).
					Msg("credential write denied, keeping in-memory state authoritative")
			}
			return nil
		}
		cs.log.Error().Err(err).Str("session", sessionID).Msg("credential write failed")
		return err
	}
	metrics.CredentialWrites.Inc()
	return nil
}
