// Package devicetest provides an in-process fake KLAP/AES device for
// end-to-end tests of the device package, built on gorilla/mux the way the
// corpus's own HTTP test servers are.
package devicetest

import (
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/gokasa/kasa-core/cryptoprim"
)

// Mode selects which wire protocol the fake server speaks.
type Mode string

const (
	ModeKLAP Mode = "klap"
	ModeAES  Mode = "aes"
)

// Responder answers one SMART method call. childID is non-empty when the
// call arrived wrapped in control_child. Returning a non-zero errorCode
// produces a SmartError on the client side; result is ignored in that case.
type Responder func(method string, params json.RawMessage, childID string) (result interface{}, errorCode int)

// FakeServer is an in-process stand-in for a single TP-Link/Tapo device,
// speaking either KLAP or AES well enough to exercise device.Device
// end-to-end: handshake, login-candidate matching, session reuse/expiry,
// 403 recovery, and SMART envelope routing.
type FakeServer struct {
	Mode Mode

	// AcceptUsername/AcceptPassword are the plaintext credentials the
	// server accepts; a zero value accepts the blank ("","") candidate,
	// matching the client's own fallback order.
	AcceptUsername string
	AcceptPassword string

	// SessionTimeoutSeconds is reported via the TIMEOUT cookie of the
	// handshake response in both modes. Zero means 24h.
	SessionTimeoutSeconds int

	Responder Responder

	forcedForbiddenCount int32

	Handshake1Count int32
	Handshake2Count int32
	RequestCount    int32
	HandshakeCount  int32
	LoginAttempts   int32

	srv *httptest.Server

	klapState klapServerState
	aesState  aesServerState
}

// ForceForbidden makes the next n authenticated requests return HTTP 403,
// exercising the client's single-retry recovery path.
func (f *FakeServer) ForceForbidden(n int) {
	atomic.StoreInt32(&f.forcedForbiddenCount, int32(n))
}

func (f *FakeServer) takeForcedForbidden() bool {
	for {
		n := atomic.LoadInt32(&f.forcedForbiddenCount)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&f.forcedForbiddenCount, n, n-1) {
			return true
		}
	}
}

func (f *FakeServer) timeoutSeconds() int {
	if f.SessionTimeoutSeconds == 0 {
		return 86400
	}
	return f.SessionTimeoutSeconds
}

// Start builds the httptest.Server for f's Mode and begins listening. The
// caller must call Close when done.
func (f *FakeServer) Start() *httptest.Server {
	router := mux.NewRouter()
	switch f.Mode {
	case ModeKLAP:
		router.HandleFunc("/app/handshake1", f.handleKlapHandshake1).Methods("POST")
		router.HandleFunc("/app/handshake2", f.handleKlapHandshake2).Methods("POST")
		router.HandleFunc("/app/request", f.handleKlapRequest).Methods("POST")
	case ModeAES:
		router.HandleFunc("/app", f.handleAES).Methods("POST")
	}
	f.srv = httptest.NewServer(router)
	return f.srv
}

// URL returns the base URL of the running server.
func (f *FakeServer) URL() string { return f.srv.URL }

// Close shuts down the underlying httptest.Server.
func (f *FakeServer) Close() { f.srv.Close() }

// respond calls f.Responder, defaulting to a bare success with no result
// when none was set.
func (f *FakeServer) respond(method string, params json.RawMessage, childID string) (interface{}, int) {
	if f.Responder == nil {
		return map[string]interface{}{}, 0
	}
	return f.Responder(method, params, childID)
}

func authHashV2(username, password string) []byte {
	return cryptoprim.SHA256(append(cryptoprim.SHA1([]byte(username)), cryptoprim.SHA1([]byte(password))...))
}

func authHashV1(username, password string) []byte {
	return cryptoprim.MD5(append(cryptoprim.MD5([]byte(username)), cryptoprim.MD5([]byte(password))...))
}
