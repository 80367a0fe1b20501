// Package aessession implements the AES session engine (RSA-wrapped
// handshake, login-candidate iteration, and securePassthrough envelope
// encryption) as a common.Transport, sharing its session lifecycle model
// with klap.Session through common.SessionFSM rather than a base type.
package aessession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/transport"
)

// authErrorCodes are the inner error_code values that mean "this candidate
// is wrong", per spec §4.3, as opposed to a hard failure.
var authErrorCodes = map[int]struct{}{
	-1501: {}, 1111: {}, -1005: {}, 1100: {}, 1003: {}, -40412: {},
}

// errAuthClassLogin marks a login attempt that failed with an
// authErrorCodes inner code, distinguishing it from a transport failure or
// an unrecoverable inner error for ensureSessionLocked, the caller of
// attemptLoginLocked.
var errAuthClassLogin = errors.New("aessession: login candidate rejected")

// Session is an AES-authenticated transport to a single device.
type Session struct {
	mu     sync.Mutex
	fsm    *common.SessionFSM
	logger common.Logger
	now    common.NowFunc

	host      string
	port      int
	timeoutMS int
	view      credentials.MergedView

	key, iv       []byte
	token         string
	sessionCookie string
	expiresAt     time.Time
}

// Options configures a new Session.
type Options struct {
	TimeoutMS int
	Logger    common.Logger
	Now       common.NowFunc
}

// New builds an AES session. No network call happens until the first Send.
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

func (s *Session) established() bool { return s.key != nil && s.token != "" }

func (s *Session) expired() bool {
	return !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt)
}

func (s *Session) resetLocked() {
	s.key, s.iv = nil, nil
	s.token = ""
	s.sessionCookie = ""
	s.expiresAt = time.Time{}
}

// ensureSessionLocked drives the FSM through Idle -> Ensuring and runs a
// full handshake+login cycle, trying each login candidate in order and
// re-handshaking between auth-class rejections per spec §4.3.
func (s *Session) ensureSessionLocked(ctx context.Context) error {
	if s.fsm.Current() == common.SessionStateReady {
		_ = s.fsm.Transient()
	}
	if err := s.fsm.Send(); err != nil {
		return common.WithHost(s.host, s.port, fmt.Errorf("%w: %v", common.ErrProtocolError, err))
	}

	candidates, err := buildLoginCandidates(s.view)
	if err != nil {
		_ = s.fsm.AuthFail()
		return common.WithHost(s.host, s.port, err)
	}

	var rejections error
	for _, c := range candidates {
		s.resetLocked()
		key, iv, cookie, timeout, err := performHandshake(ctx, s.host, s.port, s.timeoutMS)
		if err != nil {
			_ = s.fsm.Transient()
			return common.WithHost(s.host, s.port, err)
		}
		s.key, s.iv, s.sessionCookie = key, iv, cookie
		s.expiresAt = common.ExpiresAt(s.now(), timeout)

		token, err := s.attemptLoginLocked(ctx, c)
		if err == nil {
			s.token = token
			_ = s.fsm.HandshakeOK()
			return nil
		}
		if errors.Is(err, errAuthClassLogin) {
			rejections = multierr.Append(rejections, fmt.Errorf("%s: %w", c.label, err))
			continue
		}
		_ = s.fsm.Transient()
		return common.WithHost(s.host, s.port, err)
	}

	_ = s.fsm.AuthFail()
	return common.WithHost(s.host, s.port, fmt.Errorf("%w: %w", common.ErrAuthenticationFailed, rejections))
}

// attemptLoginLocked POSTs one login_device candidate through
// securePassthrough and classifies the result.
func (s *Session) attemptLoginLocked(ctx context.Context, c loginCandidate) (string, error) {
	inner, err := json.Marshal(map[string]interface{}{
		"method":             "login_device",
		"params":             c.params,
		"request_time_milis": s.now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("aessession: marshal login_device request: %w", err)
	}

	respJSON, err := s.securePassthroughLocked(ctx, string(inner), false)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal([]byte(respJSON), &env); err != nil {
		return "", fmt.Errorf("%w: login_device response is not valid JSON: %v", common.ErrProtocolError, err)
	}
	if env.ErrorCode == 0 {
		var result struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(env.Result, &result); err != nil || result.Token == "" {
			return "", fmt.Errorf("%w: login_device result missing token", common.ErrProtocolError)
		}
		return result.Token, nil
	}
	if _, ok := authErrorCodes[env.ErrorCode]; ok {
		return "", fmt.Errorf("%w: code %d", errAuthClassLogin, env.ErrorCode)
	}
	return "", &common.SmartError{Code: env.ErrorCode, Method: "login_device"}
}

// securePassthroughLocked wraps inner in a securePassthrough envelope,
// POSTs it, and returns the decrypted inner response. useToken selects the
// `/app?token=<t>` path used once logged in.
func (s *Session) securePassthroughLocked(ctx context.Context, inner string, useToken bool) (string, error) {
	cipherB64, err := encryptPassthrough(s.key, s.iv, inner)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]interface{}{
		"method": "securePassthrough",
		"params": map[string]interface{}{"request": cipherB64},
	})
	if err != nil {
		return "", fmt.Errorf("aessession: marshal securePassthrough request: %w", err)
	}

	opts := transport.PostOptions{
		ContentType: "application/json",
		Cookie:      s.sessionCookie,
		TimeoutMS:   s.timeoutMS,
	}
	if useToken && s.token != "" {
		opts.Query = map[string]string{"token": s.token}
	}

	resp, err := transport.Post(ctx, s.host, s.port, pathApp, body, opts)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != 200 {
		return "", &common.HTTPError{Status: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return "", fmt.Errorf("%w: securePassthrough response is not valid JSON: %v", common.ErrProtocolError, err)
	}
	if env.ErrorCode != 0 {
		return "", &common.SmartError{Code: env.ErrorCode, Method: "securePassthrough"}
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return "", fmt.Errorf("%w: securePassthrough result missing response", common.ErrProtocolError)
	}
	return decryptPassthrough(s.key, s.iv, result.Response)
}

// Send implements common.Transport: ensure a live session, run payload
// through securePassthrough, and recover from one 403/auth-class failure
// by resetting and logging in again.
func (s *Session) Send(ctx context.Context, payload string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fsm.IsTerminal() {
		return "", common.WithHost(s.host, s.port, common.ErrAuthenticationFailed)
	}

	retried := false
	if !s.established() || s.expired() {
		if err := s.ensureSessionLocked(ctx); err != nil {
			if !isRecoverable(err) {
				return "", err
			}
			retried = true
			if err := s.ensureSessionLocked(ctx); err != nil {
				return "", err
			}
		}
	} else if err := s.fsm.Send(); err != nil {
		return "", common.WithHost(s.host, s.port, fmt.Errorf("%w: %v", common.ErrProtocolError, err))
	}

	plain, err := s.securePassthroughLocked(ctx, payload, true)
	if err == nil {
		return plain, nil
	}
	if retried || !isRecoverable(err) {
		return "", common.WithHost(s.host, s.port, err)
	}

	if err := s.ensureSessionLocked(ctx); err != nil {
		return "", err
	}
	plain, err = s.securePassthroughLocked(ctx, payload, true)
	if err != nil {
		return "", common.WithHost(s.host, s.port, err)
	}
	return plain, nil
}

// isRecoverable reports whether err warrants the single reset+retry per
// spec §4.3: an HTTP 403, or an inner SmartError whose code is auth-class.
func isRecoverable(err error) bool {
	var httpErr *common.HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == 403 {
		return true
	}
	var smartErr *common.SmartError
	if errors.As(err, &smartErr) {
		_, ok := authErrorCodes[smartErr.Code]
		return ok
	}
	return false
}

// Close resets session state synchronously and idempotently.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	_ = s.fsm.Reset()
	return nil
}
