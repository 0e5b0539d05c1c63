package protocol

import (
	"strings"
)

// Address servers used by the chat network.
const (
	ServerUser      = "s.whatsapp.net"
	ServerGroup     = "g.us"
	ServerLinked    = "lid"
	ServerBroadcast = "broadcast"

	statusBroadcastUser = "status"
)

// JID is a protocol-level address: user@server, optionally carrying a device
// suffix ("user@server:3"). Device suffixes never participate in identity
// comparison.
type JID struct {
	User   string
	Server string
	Device string
}

// ParseJID parses "user@server", "user@server:device" and "user:device@server"
// forms. Input without a server is treated as a bare user address.
func ParseJID(raw string) JID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return JID{}
	}

	user := raw
	server := ServerUser
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		user = raw[:at]
		server = raw[at+1:]
	}
	var device string
	// Device suffix on either side of the @.
	if colon := strings.IndexByte(server, ':'); colon >= 0 {
		device = server[colon+1:]
		server = server[:colon]
	}
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		device = user[colon+1:]
		user = user[:colon]
	}
	return JID{User: user, Server: server, Device: device}
}

func (j JID) String() string {
	if j.User == "" && j.Server == "" {
		return ""
	}
	s := j.User + "@" + j.Server
	if j.Device != "" {
		s += ":" + j.Device
	}
	return s
}

func (j JID) IsEmpty() bool  { return j.User == "" }
func (j JID) IsGroup() bool  { return j.Server == ServerGroup }
func (j JID) IsLinked() bool { return j.Server == ServerLinked }
func (j JID) IsBroadcastList() bool {
	return j.Server == ServerBroadcast && j.User != statusBroadcastUser
}
func (j JID) IsStatusBroadcast() bool {
	return j.Server == ServerBroadcast && j.User == statusBroadcastUser
}

// NormalizePhone reduces any phone-like input to canonical international
// digits. Device suffixes and server parts are stripped first, then every
// non-numeric character; a leading "0" (local format) is replaced with the
// default country code. "+20 100 123 4567", "0100 1234567" and
// "201001234567@s.whatsapp.net:5" all normalize to "201001234567" with
// country code "20".
func NormalizePhone(raw, defaultCountryCode string) string {
	j := ParseJID(raw)
	user := j.User
	if user == "" {
		user = raw
	}

	var b strings.Builder
	for _, r := range user {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "0") && defaultCountryCode != "" {
		digits = defaultCountryCode + strings.TrimLeft(digits, "0")
	}
	return digits
}

// UserJID builds a canonical user address from a phone-like input.
func UserJID(phone, defaultCountryCode string) JID {
	return JID{User: NormalizePhone(phone, defaultCountryCode), Server: ServerUser}
}

// ChatKey returns the canonical conversation key for an address: groups keep
// their group id, user addresses collapse to normalized digits.
func ChatKey(j JID, defaultCountryCode string) string {
	if j.IsGroup() {
		return j.User + "@" + ServerGroup
	}
	digits := NormalizePhone(j.User, defaultCountryCode)
	if digits == "" {
		return ""
	}
	return digits + "@" + ServerUser
}
