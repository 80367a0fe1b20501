package common

import "time"

// NowFunc is injected into both session engines so expiresAt arithmetic and
// the guard-buffer math are deterministically testable without sleeping a
// real clock. Production callers never set this; it defaults to time.Now.
type NowFunc func() time.Time

// DefaultNowFunc is the production clock.
func DefaultNowFunc() time.Time { return time.Now() }
