package common

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the taxonomy every engine surfaces at its
// boundary. Callers use errors.Is against these; the variants that carry
// data (HTTPError, SmartError) are matched with errors.As instead.
var (
	// ErrInvalidCredentials is returned by options validation when neither
	// plaintext credentials nor a credentials hash are usable.
	ErrInvalidCredentials = errors.New("kasa: invalid credentials")

	// ErrAuthenticationFailed is returned when a candidate list (KLAP
	// challenge candidates or AES login candidates) is exhausted without a
	// match.
	ErrAuthenticationFailed = errors.New("kasa: authentication failed")

	// ErrHandshakeInvalid is returned for a malformed handshake response:
	// wrong size, bad PKCS#1 padding, or a missing key.
	ErrHandshakeInvalid = errors.New("kasa: invalid handshake response")

	// ErrProtocolError is returned for wire-format violations: bad JSON,
	// missing fields, short ciphertext.
	ErrProtocolError = errors.New("kasa: protocol error")

	// ErrTimeout is returned when an HTTP deadline elapses.
	ErrTimeout = errors.New("kasa: timeout")

	// ErrTransport is returned for socket/TLS-level failures below the
	// HTTP status-code layer.
	ErrTransport = errors.New("kasa: transport error")

	// ErrInvalidArgument is returned for caller-side misuse, such as
	// specifying more than one childId on a single SMART call.
	ErrInvalidArgument = errors.New("kasa: invalid argument")
)

// HTTPError is returned for a non-200 HTTP status outside the cases each
// engine recovers from locally (KLAP 403, AES 403/auth-class inner error).
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("kasa: unexpected HTTP status %d", e.Status)
}

// SmartError is returned for a non-zero error_code in a SMART envelope,
// including a per-entry failure inside a multipleRequest batch.
type SmartError struct {
	Code         int
	Method       string
	RequestJSON  string
	ResponseJSON string
}

func (e *SmartError) Error() string {
	return fmt.Sprintf("kasa: smart error %d on method %q", e.Code, e.Method)
}

// WithHost prefixes an error with the device's host:port, matching the
// spec's requirement that user-visible errors name the device without ever
// including plaintext credentials or key material.
func WithHost(host string, port int, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("kasa: device %s:%d: %w", host, port, err)
}
