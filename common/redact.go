package common

import "strings"

// Redacted is the fixed replacement text for any secret rendered into a log
// line or error string. It is deliberately distinctive so a reviewer
// grepping logs can confirm redaction happened rather than a field being
// merely empty.
const Redacted = "[REDACTED]"

// sensitiveKeys names the MergedView/Credentials fields that must never
// appear in rendered form, per spec: "password and credentialsHash replaced
// by [REDACTED]; username preserved."
var sensitiveKeys = map[string]struct{}{
	"password":        {},
	"credentialshash": {},
	"credentials_hash": {},
}

// RedactKV scans a logger key/value slice and replaces the value of any
// sensitive key with Redacted. It never mutates the caller's slice.
func RedactKV(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			out[i+1] = Redacted
		}
	}
	return out
}

// RedactSecret replaces a non-empty secret with Redacted, leaving empty
// strings empty so callers can still distinguish "not set" from "set".
func RedactSecret(s string) string {
	if s == "" {
		return ""
	}
	return Redacted
}
