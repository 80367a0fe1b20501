package klap

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/cryptoprim"
	"github.com/gokasa/kasa-core/transport"
)

const (
	pathHandshake1 = "/app/handshake1"
	pathHandshake2 = "/app/handshake2"
	pathRequest    = "/app/request"
)

// handshakeState groups the handshake-1 outputs (both seeds, the matched
// candidate and the session cookie). performHandshake does not use it; it
// returns the derived session values directly.
type handshakeState struct {
	localSeed, remoteSeed []byte
	matched               authCandidate
	sessionCookie         string
}

func randomSeed() ([]byte, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("klap: generate local seed: %w", err)
	}
	return b, nil
}

// challengeHash computes the handshake-1 matching hash for one candidate,
// per spec §4.2: v2 = sha256(LS‖RS‖A), v1 = sha256(LS‖A).
func challengeHash(c authCandidate, localSeed, remoteSeed []byte) []byte {
	if c.version == authV2 {
		return cryptoprim.SHA256Concat(localSeed, remoteSeed, c.hash)
	}
	return cryptoprim.SHA256Concat(localSeed, c.hash)
}

// handshake2Hash computes the handshake-2 body for the matched candidate,
// per spec §4.2: v2 = sha256(RS‖LS‖A), v1 = sha256(RS‖A).
func handshake2Hash(c authCandidate, localSeed, remoteSeed []byte) []byte {
	if c.version == authV2 {
		return cryptoprim.SHA256Concat(remoteSeed, localSeed, c.hash)
	}
	return cryptoprim.SHA256Concat(remoteSeed, c.hash)
}

// deriveSession computes the AES key, IV prefix, initial sequence number
// and signature prefix from the two handshake seeds and the matched
// candidate's auth hash, per spec §4.2.
func deriveSession(localSeed, remoteSeed, authHash []byte) (key, ivPrefix, sigPrefix []byte, initialSeq int32) {
	keyFull := cryptoprim.SHA256Concat([]byte("lsk"), localSeed, remoteSeed, authHash)
	key = keyFull[:16]

	fullIv := cryptoprim.SHA256Concat([]byte("iv"), localSeed, remoteSeed, authHash)
	ivPrefix = fullIv[:12]
	initialSeq = int32(
		uint32(fullIv[28])<<24 | uint32(fullIv[29])<<16 | uint32(fullIv[30])<<8 | uint32(fullIv[31]),
	)

	sigFull := cryptoprim.SHA256Concat([]byte("ldk"), localSeed, remoteSeed, authHash)
	sigPrefix = sigFull[:28]
	return key, ivPrefix, sigPrefix, initialSeq
}

// performHandshake runs handshake-1 against candidates built from view,
// matching the device's serverHash against each in order, then runs
// handshake-2 with the matched candidate, then derives the session.
func performHandshake(ctx context.Context, host string, port, timeoutMS int, view credentials.MergedView) (key, ivPrefix, sigPrefix []byte, initialSeq int32, sessionCookie string, timeout time.Duration, err error) {
	candidates, err := buildCandidateList(view)
	if err != nil {
		return nil, nil, nil, 0, "", 0, fmt.Errorf("%w: building candidate list: %v", common.ErrInvalidCredentials, err)
	}

	localSeed, err := randomSeed()
	if err != nil {
		return nil, nil, nil, 0, "", 0, err
	}

	resp, err := transport.Post(ctx, host, port, pathHandshake1, localSeed, transport.PostOptions{
		ContentType: "application/octet-stream",
		TimeoutMS:   timeoutMS,
	})
	if err != nil {
		return nil, nil, nil, 0, "", 0, err
	}
	if resp.StatusCode != 200 {
		return nil, nil, nil, 0, "", 0, &common.HTTPError{Status: resp.StatusCode}
	}
	if len(resp.Body) != 48 {
		return nil, nil, nil, 0, "", 0, fmt.Errorf("%w: handshake1 response %d bytes, want 48", common.ErrHandshakeInvalid, len(resp.Body))
	}
	remoteSeed := resp.Body[0:16]
	serverHash := resp.Body[16:48]
	cookie, timeout := transport.SessionCookie(resp.Header, "TP_SESSIONID")

	var matched *authCandidate
	for i := range candidates {
		if string(challengeHash(candidates[i], localSeed, remoteSeed)) == string(serverHash) {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		return nil, nil, nil, 0, "", 0, common.ErrAuthenticationFailed
	}

	h2Body := handshake2Hash(*matched, localSeed, remoteSeed)
	resp2, err := transport.Post(ctx, host, port, pathHandshake2, h2Body, transport.PostOptions{
		ContentType: "application/octet-stream",
		Cookie:      cookie,
		TimeoutMS:   timeoutMS,
	})
	if err != nil {
		return nil, nil, nil, 0, "", 0, err
	}
	if resp2.StatusCode != 200 {
		return nil, nil, nil, 0, "", 0, &common.HTTPError{Status: resp2.StatusCode}
	}

	key, ivPrefix, sigPrefix, initialSeq = deriveSession(localSeed, remoteSeed, matched.hash)
	return key, ivPrefix, sigPrefix, initialSeq, cookie, timeout, nil
}
