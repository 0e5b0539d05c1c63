package session

import (
	"encoding/json"

	"whatsapp-bridge/internal/protocol"
)

// credentialRecord is the persisted shape of a session's credential state.
// []byte fields round-trip through base64, so raw key buffers survive
// encode/decode exactly.
type credentialRecord struct {
	Credentials protocol.Credentials         `json:"credentials"`
	Keys        map[string]map[string][]byte `json:"keys"`
}

func encodeAuthState(st *protocol.AuthState) ([]byte, error) {
	return json.Marshal(credentialRecord{Credentials: st.Creds, Keys: st.Keys})
}

func decodeAuthState(data []byte) (*protocol.AuthState, error) {
	var rec credentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	st := &protocol.AuthState{Creds: rec.Credentials, Keys: rec.Keys}
	if st.Keys == nil {
		st.Keys = make(map[string]map[string][]byte)
	}
	return st, nil
}
