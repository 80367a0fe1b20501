package devicetest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gokasa/kasa-core/cryptoprim"
)

// aesServerState holds the per-handshake AES key/iv and the issued login
// token, mutated under mu across the handshake/login_device/securePassthrough
// call sequence.
type aesServerState struct {
	mu    sync.Mutex
	key   []byte
	iv    []byte
	token string
}

type aesEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func writeAESEnvelope(w http.ResponseWriter, errorCode int, result interface{}) {
	if result == nil {
		result = map[string]interface{}{}
	}
	body, _ := json.Marshal(map[string]interface{}{"error_code": errorCode, "result": result})
	w.WriteHeader(200)
	_, _ = w.Write(body)
}

// handleAES dispatches the single AES-transport endpoint by outer method:
// handshake, securePassthrough (which itself carries login_device or any
// SMART call), everything else is a protocol violation from this client.
func (f *FakeServer) handleAES(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var env aesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		w.WriteHeader(400)
		return
	}

	switch env.Method {
	case "handshake":
		f.handleAESHandshake(w, env.Params)
	case "securePassthrough":
		f.handleAESPassthrough(w, env.Params)
	default:
		w.WriteHeader(404)
	}
}

func (f *FakeServer) handleAESHandshake(w http.ResponseWriter, params json.RawMessage) {
	atomic.AddInt32(&f.HandshakeCount, 1)

	var p struct {
		Key string `json:"key"`
	}
	_ = json.Unmarshal(params, &p)

	block, _ := pem.Decode([]byte(p.Key))
	if block == nil {
		w.WriteHeader(500)
		return
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		w.WriteHeader(500)
		return
	}

	material := make([]byte, 32)
	for i := range material {
		material[i] = byte(0x40 + i)
	}

	f.aesState.mu.Lock()
	f.aesState.key, f.aesState.iv = material[0:16], material[16:32]
	f.aesState.token = ""
	f.aesState.mu.Unlock()

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, material)
	if err != nil {
		w.WriteHeader(500)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "TP_SESSIONID", Value: "aes-sess-1"})
	http.SetCookie(w, &http.Cookie{Name: "TIMEOUT", Value: strconv.Itoa(f.timeoutSeconds())})
	writeAESEnvelope(w, 0, map[string]interface{}{"key": base64.StdEncoding.EncodeToString(encrypted)})
}

func (f *FakeServer) handleAESPassthrough(w http.ResponseWriter, params json.RawMessage) {
	if f.takeForcedForbidden() {
		w.WriteHeader(403)
		return
	}

	var p struct {
		Request string `json:"request"`
	}
	_ = json.Unmarshal(params, &p)

	f.aesState.mu.Lock()
	key, iv := f.aesState.key, f.aesState.iv
	f.aesState.mu.Unlock()
	if key == nil {
		w.WriteHeader(500)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(p.Request)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	plain, err := cryptoprim.AESCBCDecrypt(key, iv, raw)
	if err != nil {
		w.WriteHeader(500)
		return
	}

	var inner aesEnvelope
	if err := json.Unmarshal(plain, &inner); err != nil {
		w.WriteHeader(500)
		return
	}

	var innerResp []byte
	if inner.Method == "login_device" {
		atomic.AddInt32(&f.LoginAttempts, 1)
		innerResp = f.handleAESLogin(inner.Params)
	} else {
		innerResp = f.dispatch(plain)
	}

	cipher, err := cryptoprim.AESCBCEncrypt(key, iv, innerResp)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	writeAESEnvelope(w, 0, map[string]interface{}{"response": base64.StdEncoding.EncodeToString(cipher)})
}

// loginRejectedCode is the inner error_code returned for a rejected login;
// it is one of the codes aessession treats as "this login candidate is
// wrong" rather than a hard failure.
const loginRejectedCode = -1501

func (f *FakeServer) handleAESLogin(params json.RawMessage) []byte {
	var loginParams map[string]string
	_ = json.Unmarshal(params, &loginParams)

	accepted := loginParams["username"] == b64(sha1Hex(f.AcceptUsername)) &&
		(loginParams["password2"] == b64(sha1Hex(f.AcceptPassword)) ||
			loginParams["password"] == b64(f.AcceptPassword))

	if !accepted {
		return marshalEnvelope(loginRejectedCode, map[string]interface{}{})
	}

	token := "fake-token-1"
	f.aesState.mu.Lock()
	f.aesState.token = token
	f.aesState.mu.Unlock()
	return marshalEnvelope(0, map[string]interface{}{"token": token})
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func sha1Hex(s string) string { return hex.EncodeToString(cryptoprim.SHA1([]byte(s))) }
