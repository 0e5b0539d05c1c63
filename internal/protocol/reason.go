package protocol

// DisconnectReason classifies why a connection closed. The session manager
// decides between reconnect, logout and forced deletion based on it.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonConnectionLost
	ReasonConnectionReplaced
	ReasonTimedOut
	ReasonRestartRequired
	ReasonLoggedOut
	ReasonBadMAC
	ReasonCredentialDecrypt
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonRestartRequired:
		return "restart_required"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonBadMAC:
		return "bad_mac"
	case ReasonCredentialDecrypt:
		return "credential_decrypt"
	default:
		return "unknown"
	}
}

// IsLoggedOut reports an explicit device unlink. No reconnect is possible
// without re-pairing.
func (r DisconnectReason) IsLoggedOut() bool { return r == ReasonLoggedOut }

// IsCorruption reports unrecoverable credential state. Reconnecting with the
// same material would fail forever, so the session must be torn down.
func (r DisconnectReason) IsCorruption() bool {
	return r == ReasonBadMAC || r == ReasonCredentialDecrypt
}
