package protocol

// Credentials is the registration material required to re-establish an
// authenticated connection without re-pairing. Key fields are raw byte
// buffers and must round-trip exactly through persistence.
type Credentials struct {
	NoiseKey       []byte `json:"noise_key"`
	IdentityKey    []byte `json:"identity_key"`
	SignedPreKey   []byte `json:"signed_pre_key"`
	RegistrationID uint32 `json:"registration_id"`
	Me             string `json:"me"` // own JID, set after pairing
	PushName       string `json:"push_name"`
	Registered     bool   `json:"registered"`
}

// AuthState is the full credential state for one session: registration
// credentials plus signal key material grouped by category and id.
type AuthState struct {
	Creds Credentials
	Keys  map[string]map[string][]byte
}

// NewAuthState returns an empty state for a session that has never paired.
func NewAuthState() *AuthState {
	return &AuthState{Keys: make(map[string]map[string][]byte)}
}
