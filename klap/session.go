// Package klap implements the KLAP session engine (two-phase challenge
// handshake, candidate selection, and sequence-numbered signed AES framing)
// as a common.Transport, the Go rendering of "model as a capability set,
// not a base class" from the spec's redesign notes.
package klap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/transport"
)

// Session is a KLAP-authenticated transport to a single device. Send holds
// the session mutex for its whole duration, so concurrent Send calls are
// serialized; device.Device additionally serializes its sends through the
// per-device smart.Queue the spec assigns to C5.
type Session struct {
	mu     sync.Mutex
	fsm    *common.SessionFSM
	logger common.Logger
	now    common.NowFunc

	host      string
	port      int
	timeoutMS int
	view      credentials.MergedView

	key, ivPrefix, sigPrefix []byte
	sequence                 atomic.Int32
	sessionCookie            string
	expiresAt                time.Time
}

// Options configures a new Session.
type Options struct {
	TimeoutMS int
	Logger    common.Logger
	Now       common.NowFunc
}

// New builds a KLAP session. No network call happens until the first Send;
// the handshake runs lazily, matching the spec's "created lazily on first
// send" lifecycle rule.
func New(host string, port int, view credentials.MergedView, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = common.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = common.DefaultNowFunc
	}
	return &Session{
		fsm:       common.NewSessionFSM(logger),
		logger:    logger,
		now:       now,
		host:      host,
		port:      port,
		timeoutMS: opts.TimeoutMS,
		view:      view,
	}
}

func (s *Session) established() bool {
	return s.key != nil
}

func (s *Session) expired() bool {
	return !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
}

// resetLocked drops all session state; the mutex must already be held.
func (s *Session) resetLocked() {
	s.key, s.ivPrefix, s.sigPrefix = nil, nil, nil
	s.sequence.Store(0)
	s.sessionCookie = ""
	s.expiresAt = time.Time{}
}

func (s *Session) handshakeLocked(ctx context.Context) error {
	key, ivPrefix, sigPrefix, initialSeq, cookie, timeout, err := performHandshake(ctx, s.host, s.port, s.timeoutMS, s.view)
	if err != nil {
		if errors.Is(err, common.ErrAuthenticationFailed) {
			_ = s.fsm.AuthFail()
		} else {
			_ = s.fsm.Transient()
		}
		return common.WithHost(s.host, s.port, err)
	}
	s.key, s.ivPrefix, s.sigPrefix = key, ivPrefix, sigPrefix
	s.sequence.Store(initialSeq)
	s.sessionCookie = cookie
	s.expiresAt = common.ExpiresAt(s.now(), timeout)
	_ = s.fsm.HandshakeOK()
	return nil
}

// Send implements common.Transport: ensure a live session, frame and POST
// payload, recover from one 403 by resetting and re-handshaking, and
// return the decrypted plaintext.
func (s *Session) Send(ctx context.Context, payload string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsm.IsTerminal() {
		return "", common.WithHost(s.host, s.port, common.ErrAuthenticationFailed)
	}

	if !s.established() || s.expired() {
		if err := s.ensureSessionLocked(ctx); err != nil {
			return "", err
		}
	} else if err := s.fsm.Send(); err != nil {
		return "", common.WithHost(s.host, s.port, fmt.Errorf("%w: %v", common.ErrProtocolError, err))
	}

	plain, err := s.attemptLocked(ctx, payload)
	if err == nil {
		return plain, nil
	}

	var httpErr *common.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 403 {
		return "", err
	}

	// One 403 on the data path resets and re-handshakes, then retries
	// exactly once.
	if err := s.ensureSessionLocked(ctx); err != nil {
		return "", err
	}
	plain, err = s.attemptLocked(ctx, payload)
	if err != nil {
		return "", err
	}
	return plain, nil
}

// ensureSessionLocked drives the FSM through Idle -> Ensuring and runs the
// handshake, resetting any stale session state first. The caller holds
// s.mu and the FSM must not already be in the terminal Error state.
func (s *Session) ensureSessionLocked(ctx context.Context) error {
	if s.fsm.Current() == common.SessionStateReady {
		_ = s.fsm.Transient()
	}
	if err := s.fsm.Send(); err != nil {
		return common.WithHost(s.host, s.port, fmt.Errorf("%w: %v", common.ErrProtocolError, err))
	}
	s.resetLocked()
	return s.handshakeLocked(ctx)
}

// attemptLocked performs exactly one framed request/response round trip
// against the current session state. The caller holds s.mu.
func (s *Session) attemptLocked(ctx context.Context, payload string) (string, error) {
	newSeq, body, err := frame(s.key, s.ivPrefix, s.sigPrefix, s.sequence.Load(), []byte(payload))
	if err != nil {
		return "", common.WithHost(s.host, s.port, err)
	}

	resp, err := transport.Post(ctx, s.host, s.port, pathRequest, body, transport.PostOptions{
		ContentType: "application/octet-stream",
		Cookie:      s.sessionCookie,
		TimeoutMS:   s.timeoutMS,
		Query:       map[string]string{"seq": strconv.Itoa(int(newSeq))},
	})
	if err != nil {
		return "", common.WithHost(s.host, s.port, err)
	}
	if resp.StatusCode != 200 {
		return "", &common.HTTPError{Status: resp.StatusCode}
	}

	s.sequence.Store(newSeq)
	plain, err := unframe(s.key, s.ivPrefix, newSeq, resp.Body)
	if err != nil {
		return "", common.WithHost(s.host, s.port, err)
	}
	return string(plain), nil
}

// Close resets session state synchronously and idempotently.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	_ = s.fsm.Reset()
	return nil
}
