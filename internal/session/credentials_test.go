package session

import (
	"fmt"
	"testing"
	"time"

	"whatsapp-bridge/internal/database"
	"whatsapp-bridge/internal/models"
	"whatsapp-bridge/internal/protocol"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	return db
}

func credentialRows(t *testing.T, db *gorm.DB, sessionID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.SessionCredential{}).
		Where("session_id = ?", sessionID).Count(&n).Error)
	return n
}

func TestDebouncedKeyWrites(t *testing.T) {
	db := testDB(t)
	cs := NewCredentialStore(db, zerolog.Nop())
	cs.debounce = 80 * time.Millisecond

	for i := 0; i < 10; i++ {
		cs.Set("s1", map[string]map[string][]byte{
			"pre-key": {fmt.Sprintf("k%d", i): {byte(i)}},
		})
	}

	// Still inside the debounce window: nothing flushed yet.
	assert.EqualValues(t, 0, credentialRows(t, db, "s1"))

	time.Sleep(200 * time.Millisecond)

	// Exactly one row, carrying every key from the coalesced sets.
	assert.EqualValues(t, 1, credentialRows(t, db, "s1"))

	var rec models.SessionCredential
	require.NoError(t, db.Where("session_id = ?", "s1").First(&rec).Error)
	st, err := decodeAuthState(rec.Data)
	require.NoError(t, err)
	assert.Len(t, st.Keys["pre-key"], 10)
}

func TestSaveCredentialBypassesDebounce(t *testing.T) {
	db := testDB(t)
	cs := NewCredentialStore(db, zerolog.Nop())
	cs.debounce = time.Hour // a pending timer that would never fire in-test

	cs.Set("s1", map[string]map[string][]byte{"pre-key": {"k": {1}}})
	cs.SetCredentials("s1", protocol.Credentials{Me: "201001234567@s.whatsapp.net", Registered: true})

	require.NoError(t, cs.SaveCredential("s1"))
	assert.EqualValues(t, 1, credentialRows(t, db, "s1"))

	cs.mu.Lock()
	_, pending := cs.timers["s1"]
	cs.mu.Unlock()
	assert.False(t, pending, "immediate save must cancel the pending timer")
}

func TestSetDeletesNilKeys(t *testing.T) {
	db := testDB(t)
	cs := NewCredentialStore(db, zerolog.Nop())
	cs.debounce = 20 * time.Millisecond

	cs.Set("s1", map[string]map[string][]byte{"pre-key": {"k1": {1}, "k2": {2}}})
	cs.Set("s1", map[string]map[string][]byte{"pre-key": {"k1": nil}})

	got := cs.Get("s1", "pre-key", []string{"k1", "k2"})
	assert.NotContains(t, got, "k1")
	assert.Contains(t, got, "k2")
}

func TestLoadReadThrough(t *testing.T) {
	db := testDB(t)

	writer := NewCredentialStore(db, zerolog.Nop())
	writer.SetCredentials("s1", protocol.Credentials{Me: "201001234567@s.whatsapp.net"})
	require.NoError(t, writer.SaveCredential("s1"))

	// Fresh store instance: must read the persisted state back.
	reader := NewCredentialStore(db, zerolog.Nop())
	st, err := reader.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, "201001234567@s.whatsapp.net", st.Creds.Me)
}

func TestLoadUnknownSessionGetsFreshState(t *testing.T) {
	db := testDB(t)
	cs := NewCredentialStore(db, zerolog.Nop())

	st, err := cs.Load("never-paired")
	require.NoError(t, err)
	assert.False(t, st.Creds.Registered)
	assert.Empty(t, st.Keys)
}

func TestDeleteWipesStoreAndCache(t *testing.T) {
	db := testDB(t)
	cs := NewCredentialStore(db, zerolog.Nop())

	cs.SetCredentials("s1", protocol.Credentials{Me: "x"})
	require.NoError(t, cs.SaveCredential("s1"))
	require.EqualValues(t, 1, credentialRows(t, db, "s1"))

	require.NoError(t, cs.Delete("s1"))
	assert.EqualValues(t, 0, credentialRows(t, db, "s1"))

	st, err := cs.Load("s1")
	require.NoError(t, err)
	assert.Empty(t, st.Creds.Me)
}
