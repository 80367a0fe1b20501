package aessession

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/cryptoprim"
)

// fakeAESServer reproduces just enough of an AES-transport device to
// exercise Session end to end: RSA handshake, login_device validated
// against one accepted candidate params set, and echo of any other
// securePassthrough method.
type fakeAESServer struct {
	key, iv []byte
	token   string

	acceptUsername, acceptPasswordField, acceptPasswordValue string

	handshakeCount        int32
	loginAttempts         int32
	forcedForbiddenCount  int32
	passthroughCount      int32
}

func (f *fakeAESServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		_ = json.Unmarshal(body, &req)

		switch req.Method {
		case "handshake":
			atomic.AddInt32(&f.handshakeCount, 1)
			var params struct {
				Key string `json:"key"`
			}
			_ = json.Unmarshal(req.Params, &params)

			block, _ := pem.Decode([]byte(params.Key))
			pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				w.WriteHeader(500)
				return
			}
			pub := pubAny.(*rsa.PublicKey)

			material := make([]byte, 32)
			for i := range material {
				material[i] = byte(i + 5)
			}
			f.key, f.iv = material[0:16], material[16:32]

			encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, material)
			if err != nil {
				w.WriteHeader(500)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "TP_SESSIONID", Value: "aes-sess-1"})
			http.SetCookie(w, &http.Cookie{Name: "TIMEOUT", Value: "86400"})
			writeEnvelope(w, 0, map[string]interface{}{"key": base64.StdEncoding.EncodeToString(encrypted)})

		case "securePassthrough":
			var params struct {
				Request string `json:"request"`
			}
			_ = json.Unmarshal(req.Params, &params)

			if atomic.LoadInt32(&f.forcedForbiddenCount) > 0 {
				atomic.AddInt32(&f.forcedForbiddenCount, -1)
				w.WriteHeader(403)
				return
			}

			raw, _ := base64.StdEncoding.DecodeString(params.Request)
			plain, err := cryptoprim.AESCBCDecrypt(f.key, f.iv, raw)
			if err != nil {
				w.WriteHeader(500)
				return
			}
			var inner struct {
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			_ = json.Unmarshal(plain, &inner)

			var innerResp []byte
			if inner.Method == "login_device" {
				atomic.AddInt32(&f.loginAttempts, 1)
				var loginParams map[string]string
				_ = json.Unmarshal(inner.Params, &loginParams)
				if f.accepts(loginParams) {
					f.token = "tok-1"
					innerResp, _ = json.Marshal(map[string]interface{}{"error_code": 0, "result": map[string]interface{}{"token": f.token}})
				} else {
					innerResp, _ = json.Marshal(map[string]interface{}{"error_code": -1501, "result": map[string]interface{}{}})
				}
			} else {
				atomic.AddInt32(&f.passthroughCount, 1)
				innerResp, _ = json.Marshal(map[string]interface{}{"error_code": 0, "result": map[string]interface{}{"echoedMethod": inner.Method}})
			}

			cipher, err := cryptoprim.AESCBCEncrypt(f.key, f.iv, innerResp)
			if err != nil {
				w.WriteHeader(500)
				return
			}
			writeEnvelope(w, 0, map[string]interface{}{"response": base64.StdEncoding.EncodeToString(cipher)})

		default:
			w.WriteHeader(404)
		}
	}
}

func (f *fakeAESServer) accepts(params map[string]string) bool {
	return params["username"] == f.acceptUsername && params[f.acceptPasswordField] == f.acceptPasswordValue
}

func writeEnvelope(w http.ResponseWriter, errorCode int, result map[string]interface{}) {
	body, _ := json.Marshal(map[string]interface{}{"error_code": errorCode, "result": result})
	w.WriteHeader(200)
	_, _ = w.Write(body)
}

func newTapoDefaultAcceptingServer() *fakeAESServer {
	return &fakeAESServer{
		acceptUsername:      b64(sha1Hex(tapoDefaultUsername)),
		acceptPasswordField: "password2",
		acceptPasswordValue: b64(sha1Hex(tapoDefaultPassword)),
	}
}

func newTestAESSession(t *testing.T, srv *httptest.Server, view credentials.MergedView) *Session {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return New(u.Hostname(), port, view, Options{TimeoutMS: 2000})
}

func TestSessionSendFallsBackToTapoDefault(t *testing.T) {
	fake := newTapoDefaultAcceptingServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	view := credentials.Merge(credentials.Options{}, credentials.Options{})
	sess := newTestAESSession(t, srv, view)

	resp, err := sess.Send(context.Background(), `{"method":"get_device_info"}`)
	require.NoError(t, err)
	assert.Contains(t, resp, "get_device_info")
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.handshakeCount))
}

func TestSessionLoginCredentialsHashOnly(t *testing.T) {
	fake := &fakeAESServer{
		acceptUsername:      b64(sha1Hex("user@example.com")),
		acceptPasswordField: "password2",
		acceptPasswordValue: b64(sha1Hex("secret")),
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	raw, _ := json.Marshal(map[string]string{
		"username":  b64(sha1Hex("user@example.com")),
		"password2": b64(sha1Hex("secret")),
	})
	hash := credentials.Hash(base64.StdEncoding.EncodeToString(raw))
	view := credentials.Merge(credentials.Options{CredentialsHash: hash}, credentials.Options{})

	sess := newTestAESSession(t, srv, view)
	_, err := sess.Send(context.Background(), `{"method":"get_device_info"}`)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.loginAttempts))
}

func TestSessionAuthenticationFailedWhenNoCandidateMatches(t *testing.T) {
	fake := &fakeAESServer{acceptUsername: "nobody", acceptPasswordField: "password2", acceptPasswordValue: "nothing"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	view := credentials.Merge(credentials.Options{}, credentials.Options{})
	sess := newTestAESSession(t, srv, view)

	_, err := sess.Send(context.Background(), `{"method":"get_device_info"}`)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.loginAttempts))
}

func TestSessionRecoversFromSingle403(t *testing.T) {
	fake := newTapoDefaultAcceptingServer()
	atomic.StoreInt32(&fake.forcedForbiddenCount, 1)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	view := credentials.Merge(credentials.Options{}, credentials.Options{})
	sess := newTestAESSession(t, srv, view)

	resp, err := sess.Send(context.Background(), `{"method":"get_device_info"}`)
	require.NoError(t, err)
	assert.Contains(t, resp, "get_device_info")
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.handshakeCount))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	fake := newTapoDefaultAcceptingServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	view := credentials.Merge(credentials.Options{}, credentials.Options{})
	sess := newTestAESSession(t, srv, view)

	_, err := sess.Send(context.Background(), `{"method":"get_device_info"}`)
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}
