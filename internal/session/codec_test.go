package session

import (
	"testing"

	"whatsapp-bridge/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	st := protocol.NewAuthState()
	st.Creds = protocol.Credentials{
		NoiseKey:       []byte{0x00, 0x01, 0xff, 0xfe},
		IdentityKey:    []byte("identity"),
		SignedPreKey:   []byte{0x80, 0x00, 0x7f},
		RegistrationID: 4242,
		Me:             "201001234567@s.whatsapp.net",
		PushName:       "Bridge",
		Registered:     true,
	}
	st.Keys["app-state-sync-key"] = map[string][]byte{
		"k1": {0x00, 0xde, 0xad, 0xbe, 0xef},
	}
	st.Keys["pre-key"] = map[string][]byte{
		"17": []byte("raw\x00binary\xffdata"),
	}

	data, err := encodeAuthState(st)
	require.NoError(t, err)

	got, err := decodeAuthState(data)
	require.NoError(t, err)
	assert.Equal(t, st.Creds, got.Creds)
	assert.Equal(t, st.Keys, got.Keys)
}

func TestDecodeEmptyKeys(t *testing.T) {
	data, err := encodeAuthState(&protocol.AuthState{Creds: protocol.Credentials{Me: "x"}})
	require.NoError(t, err)

	got, err := decodeAuthState(data)
	require.NoError(t, err)
	assert.NotNil(t, got.Keys)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := decodeAuthState([]byte("{not json"))
	assert.Error(t, err)
}
