package common

import (
	"context"

	"github.com/looplab/fsm"
)

// Session states and events shared by the KLAP and AES engines, matching
// the state diagram in the spec: IDLE -- send --> ENSURING -- ok --> READY,
// READY -- send/queued --> READY, ENSURING -- auth fail --> ERROR (terminal),
// ENSURING -- transient --> IDLE (single retry), IDLE -- credential
// exhaustion --> ERROR.
const (
	SessionStateIdle     = "IDLE"
	SessionStateEnsuring = "ENSURING"
	SessionStateReady    = "READY"
	SessionStateError    = "ERROR"
)

const (
	SessionEventSend        = "send"
	SessionEventHandshakeOK = "handshake_ok"
	SessionEventAuthFail    = "auth_fail"
	SessionEventTransient   = "transient"
	SessionEventReset       = "reset"
)

// SessionFSM is the looplab/fsm wrapper both klap.Session and
// aessession.Session embed. Factoring it out here is the Go rendering of
// the spec's "model as a Transport capability set... share the queue,
// redaction, and retry-once policy via composition, not inheritance": the
// two engines differ in framing, not in how their lifecycle is tracked.
type SessionFSM struct {
	fsm    *fsm.FSM
	logger Logger
}

// NewSessionFSM builds the shared state machine. logger may be nil, in
// which case transitions are not logged (callers typically pass
// device.Config.Logger, which itself defaults to NopLogger()).
func NewSessionFSM(logger Logger) *SessionFSM {
	if logger == nil {
		logger = NopLogger()
	}
	s := &SessionFSM{logger: logger}
	s.fsm = fsm.NewFSM(
		SessionStateIdle,
		fsm.Events{
			{Name: SessionEventSend, Src: []string{SessionStateIdle}, Dst: SessionStateEnsuring},
			{Name: SessionEventSend, Src: []string{SessionStateReady}, Dst: SessionStateReady},
			{Name: SessionEventHandshakeOK, Src: []string{SessionStateEnsuring}, Dst: SessionStateReady},
			{Name: SessionEventAuthFail, Src: []string{SessionStateEnsuring, SessionStateIdle}, Dst: SessionStateError},
			{Name: SessionEventTransient, Src: []string{SessionStateEnsuring, SessionStateReady}, Dst: SessionStateIdle},
			{Name: SessionEventReset, Src: []string{SessionStateReady, SessionStateIdle, SessionStateEnsuring, SessionStateError}, Dst: SessionStateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Info("session state transition", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return s
}

func (s *SessionFSM) Current() string { return s.fsm.Current() }

func (s *SessionFSM) Send() error        { return s.fsm.Event(context.Background(), SessionEventSend) }
func (s *SessionFSM) HandshakeOK() error { return s.fsm.Event(context.Background(), SessionEventHandshakeOK) }
func (s *SessionFSM) AuthFail() error    { return s.fsm.Event(context.Background(), SessionEventAuthFail) }
func (s *SessionFSM) Transient() error   { return s.fsm.Event(context.Background(), SessionEventTransient) }
func (s *SessionFSM) Reset() error       { return s.fsm.Event(context.Background(), SessionEventReset) }

// IsTerminal reports whether the session is in the ERROR terminal state,
// i.e. credential exhaustion already happened and retrying without new
// credentials would just repeat the failure.
func (s *SessionFSM) IsTerminal() bool { return s.fsm.Current() == SessionStateError }
