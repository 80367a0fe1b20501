// Package credentials holds the data model for device authentication
// inputs: plaintext Credentials, an opaque pre-hashed Hash, and the merged
// view a device actually authenticates with once device-level overrides
// are applied over client defaults.
package credentials

import "github.com/gokasa/kasa-core/common"

// Credentials is a username/password pair. Both fields must be non-empty;
// Validate reports common.ErrInvalidCredentials otherwise.
type Credentials struct {
	Username string
	Password string
}

// Validate reports common.ErrInvalidCredentials if either field is empty.
func (c Credentials) Validate() error {
	if c.Username == "" || c.Password == "" {
		return common.ErrInvalidCredentials
	}
	return nil
}

// IsZero reports whether c is the empty value (neither field set).
func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// String never renders the password; it exists so accidental %v/%s logging
// of a Credentials value can't leak it.
func (c Credentials) String() string {
	if c.Username == "" {
		return "Credentials{}"
	}
	return "Credentials{Username: " + c.Username + ", Password: " + common.Redacted + "}"
}

// Hash is an opaque, non-empty, base64-encoded pre-computed credential: for
// KLAP it is base64 of a raw auth-hash digest, for AES it is base64 of a
// JSON object {username, password|password2}. When present it takes
// precedence over plaintext Credentials.
type Hash string

// Validate reports common.ErrInvalidCredentials for an empty hash.
func (h Hash) Validate() error {
	if h == "" {
		return common.ErrInvalidCredentials
	}
	return nil
}

func (h Hash) String() string {
	if h == "" {
		return ""
	}
	return common.Redacted
}
