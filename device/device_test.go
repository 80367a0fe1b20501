package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/smart"
)

// stubTransport lets the device tests exercise envelope wrapping/unwrapping
// without a real KLAP/AES handshake: it just echoes back a canned response.
type stubTransport struct {
	lastPayload string
	response    string
	err         error
	closed      bool
}

func (s *stubTransport) Send(ctx context.Context, payload string) (string, error) {
	s.lastPayload = payload
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubTransport) Close() error {
	s.closed = true
	return nil
}

func newTestDevice(t *testing.T, transport common.Transport) *Device {
	t.Helper()
	return &Device{
		host:         "10.0.0.5",
		port:         80,
		logger:       common.NopLogger(),
		now:          func() time.Time { return time.Unix(1700000000, 0) },
		queue:        smart.NewQueue(),
		transport:    transport,
		terminalUUID: "test-terminal",
	}
}

func TestSendSmartCommandSingle(t *testing.T) {
	st := &stubTransport{response: `{"error_code":0,"result":{"ok":true}}`}
	d := newTestDevice(t, st)

	result, err := d.SendSmartCommand(context.Background(), "get_device_info", nil, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.Contains(t, st.lastPayload, `"method":"get_device_info"`)
}

func TestSendSmartCommandChild(t *testing.T) {
	st := &stubTransport{response: `{"error_code":0,"result":{"responseData":{"error_code":0,"result":{"ok":true}}}}`}
	d := newTestDevice(t, st)

	result, err := d.SendSmartCommand(context.Background(), "get_device_info", nil, "child-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.Contains(t, st.lastPayload, `"method":"control_child"`)
	assert.Contains(t, st.lastPayload, `"device_id":"child-1"`)
}

func TestSendSmartCommandPropagatesTransportError(t *testing.T) {
	st := &stubTransport{err: common.ErrAuthenticationFailed}
	d := newTestDevice(t, st)

	_, err := d.SendSmartCommand(context.Background(), "get_device_info", nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestSendSmartRequestsBatch(t *testing.T) {
	st := &stubTransport{response: `{"error_code":0,"result":{"responses":[
		{"method":"a","error_code":0,"result":{"x":1}},
		{"method":"b","error_code":0,"result":{"y":2}}
	]}}`}
	d := newTestDevice(t, st)

	out, err := d.SendSmartRequests(context.Background(), []smart.Request{{Method: "a"}, {Method: "b"}}, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.JSONEq(t, `{"x":1}`, string(out["a"]))
	assert.JSONEq(t, `{"y":2}`, string(out["b"]))
	assert.Contains(t, st.lastPayload, `"method":"multipleRequest"`)
}

func TestSendSmartRequestsBatchChild(t *testing.T) {
	st := &stubTransport{response: `{"error_code":0,"result":{"responseData":{"error_code":0,"result":{"responses":[
		{"method":"a","error_code":0,"result":{"x":1}}
	]}}}}`}
	d := newTestDevice(t, st)

	out, err := d.SendSmartRequests(context.Background(), []smart.Request{{Method: "a"}}, "child-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(out["a"]))
	assert.Contains(t, st.lastPayload, `"method":"control_child"`)
}

func TestDeviceClosePropagates(t *testing.T) {
	st := &stubTransport{}
	d := newTestDevice(t, st)
	require.NoError(t, d.Close())
	assert.True(t, st.closed)
}

func TestConfigValidateRejectsMissingFields(t *testing.T) {
	err := Config{}.Validate()
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{}, credentials.Options{})
	assert.Error(t, err)
}
