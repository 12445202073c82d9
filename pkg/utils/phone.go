package utils

import "strings"

// WhatsApp JID suffixes stripped during normalization.
var jidSuffixes = []string{
	"@s.whatsapp.net",
	"@lid",
	"@g.us",
	"@broadcast",
	"@c.us",
}

// NormalizePhone canonicalizes a WhatsApp remote JID or free-form phone
// string into a digit-only identity key. Known JID suffixes are stripped
// first, then every non-digit character. Empty input yields an empty
// result; callers must reject empty keys before contact lookup.
func NormalizePhone(raw string) string {
	s := raw
	for _, suffix := range jidSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsGroupJID reports whether the remote JID addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// IsBroadcastJID reports whether the remote JID addresses a broadcast list
// (including status broadcasts).
func IsBroadcastJID(jid string) bool {
	return strings.HasSuffix(jid, "@broadcast")
}
