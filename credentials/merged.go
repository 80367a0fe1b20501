package credentials

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Options is the subset of a device's/client's configuration relevant to
// authentication: either a Hash, or plaintext Credentials, or neither (in
// which case Merge falls through to the other side).
type Options struct {
	Credentials     Credentials
	CredentialsHash Hash
}

// MergedView is the result of layering a device's Options over a client's
// default Options: device-level overrides win field-for-field, computed
// once per device. Every rendering method on MergedView redacts secrets;
// there is no way to print the real password/hash through this type.
type MergedView struct {
	Username        string
	password        string
	credentialsHash Hash
}

// Merge layers device over client default: a non-zero device field wins,
// otherwise the client default is used.
func Merge(device, clientDefault Options) MergedView {
	v := MergedView{}

	v.credentialsHash = device.CredentialsHash
	if v.credentialsHash == "" {
		v.credentialsHash = clientDefault.CredentialsHash
	}

	creds := device.Credentials
	if creds.IsZero() {
		creds = clientDefault.Credentials
	}
	v.Username = creds.Username
	v.password = creds.Password

	return v
}

// HasHash reports whether a credentials hash takes precedence over
// plaintext credentials for this view.
func (v MergedView) HasHash() bool { return v.credentialsHash != "" }

// Hash returns the merged credentials hash (empty if none set).
func (v MergedView) Hash() Hash { return v.credentialsHash }

// Password returns the merged plaintext password. Callers that only need
// to log or compare should prefer Redacted()/LogFields(); Password exists
// for the engines that must actually authenticate with it.
func (v MergedView) Password() string { return v.password }

// Credentials returns the merged plaintext Credentials pair.
func (v MergedView) Credentials() Credentials {
	return Credentials{Username: v.Username, Password: v.password}
}

// Redacted renders the view with password/credentialsHash replaced by
// "[REDACTED]" and username preserved, matching the spec's redaction rule
// for any log/error rendering.
func (v MergedView) Redacted() string {
	return fmt.Sprintf("MergedView{Username: %q, Password: %s, CredentialsHash: %s}",
		v.Username, redactedOrEmpty(v.password), v.credentialsHash.String())
}

func redactedOrEmpty(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogFields renders v as alternating key/value pairs suitable for
// common.Logger calls; username is preserved, password/credentialsHash are
// never included in the clear: when set, their keys are present with the
// value "[REDACTED]", and when unset they are omitted.
func (v MergedView) LogFields() []interface{} {
	fields := []interface{}{"username", v.Username}
	if v.password != "" {
		fields = append(fields, "password", "[REDACTED]")
	}
	if v.credentialsHash != "" {
		fields = append(fields, "credentialsHash", "[REDACTED]")
	}
	return fields
}

// debugView is the redacted shape DebugYAML marshals; it exists so yaml.v3
// never sees the real password/hash fields.
type debugView struct {
	Username        string `yaml:"username"`
	Password        string `yaml:"password,omitempty"`
	CredentialsHash string `yaml:"credentialsHash,omitempty"`
}

// DebugYAML renders a redacted, structured snapshot of v for Debug-level
// logging, e.g. when a caller wants one readable block describing which
// credential source a device is about to authenticate with.
func (v MergedView) DebugYAML() string {
	dv := debugView{Username: v.Username}
	if v.password != "" {
		dv.Password = "[REDACTED]"
	}
	if v.credentialsHash != "" {
		dv.CredentialsHash = "[REDACTED]"
	}
	out, err := yaml.Marshal(dv)
	if err != nil {
		return v.Redacted()
	}
	return string(out)
}
