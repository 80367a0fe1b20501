package common

import "context"

// Transport is the capability both session engines implement: encrypt/sign
// a SMART-layer payload, round-trip it, and return the decrypted plaintext
// (KLAP) or the stringified parsed JSON (AES). Modeling KLAP and AES as two
// implementations of one small interface — rather than a shared base type —
// is the composition the spec calls for in place of inheritance: the queue
// lives once, above this interface, redaction and the session state machine
// are shared helpers, and each engine owns its own framing and its own
// reset-and-retry-once handling.
type Transport interface {
	// Send encrypts/signs payload, performs one HTTP round trip (plus,
	// internally, the handshake/login needed to have a session at all),
	// and returns the decrypted response body. If the device rejects the
	// session (HTTP 403, or for AES an auth-class inner error), Send resets
	// it, establishes a new one and retries the round trip once. A session
	// is established lazily on first call and reused until Close or such a
	// rejection resets it.
	Send(ctx context.Context, payload string) (string, error)

	// Close releases session state synchronously. It is idempotent and
	// never returns an error that a caller needs to act on.
	Close() error
}
