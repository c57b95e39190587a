package logging

import "log/slog"

// IdentityKey is the attribute key under which identity keys are logged.
const IdentityKey = "identity"

// RedactIdentity masks an identity key, keeping only its first character.
// Identity keys are often user ids or email addresses.
func RedactIdentity(identity string) string {
	if identity == "" {
		return ""
	}
	r := []rune(identity)
	return string(r[0]) + "***"
}

// RedactIdentityAttr is a slog ReplaceAttr hook that masks the value of
// every attribute named IdentityKey, at any group depth.
func RedactIdentityAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == IdentityKey && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, RedactIdentity(a.Value.String()))
	}
	return a
}
