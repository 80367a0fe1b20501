package devicetest

import (
	"encoding/binary"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gokasa/kasa-core/cryptoprim"
)

// klapServerState holds the per-handshake key material derived after
// handshake1/2, mutated under mu since KLAP's two-phase handshake plus
// request cycle isn't otherwise atomic across HTTP calls.
type klapServerState struct {
	mu sync.Mutex

	localSeed, remoteSeed   []byte
	key, ivPrefix, sigPrefix []byte
	cookie                   string
}

func klapInt32BE(n int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

func klapChallengeHash(version int, username, password string, localSeed, remoteSeed []byte) []byte {
	var authHash []byte
	if version == 2 {
		authHash = authHashV2(username, password)
		return cryptoprim.SHA256Concat(localSeed, remoteSeed, authHash)
	}
	authHash = authHashV1(username, password)
	return cryptoprim.SHA256Concat(localSeed, authHash)
}

func klapHandshake2Hash(version int, username, password string, localSeed, remoteSeed []byte) []byte {
	var authHash []byte
	if version == 2 {
		authHash = authHashV2(username, password)
		return cryptoprim.SHA256Concat(remoteSeed, localSeed, authHash)
	}
	authHash = authHashV1(username, password)
	return cryptoprim.SHA256Concat(remoteSeed, authHash)
}

func klapDeriveSession(localSeed, remoteSeed, authHash []byte) (key, ivPrefix, sigPrefix []byte) {
	keyFull := cryptoprim.SHA256Concat([]byte("lsk"), localSeed, remoteSeed, authHash)
	fullIv := cryptoprim.SHA256Concat([]byte("iv"), localSeed, remoteSeed, authHash)
	sigFull := cryptoprim.SHA256Concat([]byte("ldk"), localSeed, remoteSeed, authHash)
	return keyFull[:16], fullIv[:12], sigFull[:28]
}

// handleKlapHandshake1 computes the v2 challenge for the accepted
// username/password from the client's localSeed (v1 is never used),
// remembers state, and replies remoteSeed||serverHash.
func (f *FakeServer) handleKlapHandshake1(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.Handshake1Count, 1)

	localSeed, _ := io.ReadAll(r.Body)
	remoteSeed := make([]byte, 16)
	for i := range remoteSeed {
		remoteSeed[i] = byte(0xA0 + i)
	}

	f.klapState.mu.Lock()
	f.klapState.localSeed = localSeed
	f.klapState.remoteSeed = remoteSeed
	f.klapState.cookie = "klap-sess-1"
	f.klapState.mu.Unlock()

	serverHash := klapChallengeHash(2, f.AcceptUsername, f.AcceptPassword, localSeed, remoteSeed)

	http.SetCookie(w, &http.Cookie{Name: "TP_SESSIONID", Value: "klap-sess-1"})
	http.SetCookie(w, &http.Cookie{Name: "TIMEOUT", Value: strconv.Itoa(f.timeoutSeconds())})
	w.WriteHeader(200)
	_, _ = w.Write(append(append([]byte{}, remoteSeed...), serverHash...))
}

func (f *FakeServer) handleKlapHandshake2(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.Handshake2Count, 1)

	f.klapState.mu.Lock()
	authHash := authHashV2(f.AcceptUsername, f.AcceptPassword)
	key, ivPrefix, sigPrefix := klapDeriveSession(f.klapState.localSeed, f.klapState.remoteSeed, authHash)
	f.klapState.key, f.klapState.ivPrefix, f.klapState.sigPrefix = key, ivPrefix, sigPrefix
	f.klapState.mu.Unlock()

	w.WriteHeader(200)
}

func (f *FakeServer) handleKlapRequest(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.RequestCount, 1)

	if f.takeForcedForbidden() {
		w.WriteHeader(403)
		return
	}

	seq64, _ := strconv.ParseInt(r.URL.Query().Get("seq"), 10, 32)
	seq := int32(seq64)

	body, _ := io.ReadAll(r.Body)
	if len(body) < 32 {
		w.WriteHeader(500)
		return
	}

	f.klapState.mu.Lock()
	key, ivPrefix, sigPrefix := f.klapState.key, f.klapState.ivPrefix, f.klapState.sigPrefix
	f.klapState.mu.Unlock()
	if key == nil {
		w.WriteHeader(500)
		return
	}

	iv := append(append([]byte{}, ivPrefix...), klapInt32BE(seq)...)
	plain, err := cryptoprim.AESCBCDecrypt(key, iv, body[32:])
	if err != nil {
		w.WriteHeader(500)
		return
	}

	respPlain := f.dispatch(plain)

	respCipher, err := cryptoprim.AESCBCEncrypt(key, iv, respPlain)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	sig := cryptoprim.SHA256Concat(sigPrefix, klapInt32BE(seq), respCipher)

	out := make([]byte, 0, len(sig)+len(respCipher))
	out = append(out, sig...)
	out = append(out, respCipher...)

	w.WriteHeader(200)
	_, _ = w.Write(out)
}
