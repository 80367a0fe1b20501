package klap

import (
	"encoding/binary"
	"fmt"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/cryptoprim"
)

// nextSeq advances a KLAP sequence number with the spec's explicit
// signed-32-bit wrap: the maximum positive value wraps to the minimum
// negative value rather than overflowing into undefined behavior.
func nextSeq(seq int32) int32 {
	if seq == 0x7FFFFFFF {
		return -0x80000000
	}
	return seq + 1
}

// int32BE renders n as 4 big-endian bytes, matching the wire format used
// both in the IV suffix and in the request-framing signature input.
func int32BE(n int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

// frame encrypts and signs plaintext for seq' = nextSeq(seq), returning the
// new sequence number and the `sig ‖ cipher` request body per spec §4.2.
func frame(key, ivPrefix, sigPrefix []byte, seq int32, plaintext []byte) (newSeq int32, body []byte, err error) {
	newSeq = nextSeq(seq)
	iv := append(append([]byte{}, ivPrefix...), int32BE(newSeq)...)

	cipher, err := cryptoprim.AESCBCEncrypt(key, iv, plaintext)
	if err != nil {
		return 0, nil, fmt.Errorf("klap: encrypt request: %w", err)
	}
	sig := cryptoprim.SHA256Concat(sigPrefix, int32BE(newSeq), cipher)

	body = make([]byte, 0, len(sig)+len(cipher))
	body = append(body, sig...)
	body = append(body, cipher...)
	return newSeq, body, nil
}

// unframe decrypts a response body under the request's own sequence number.
// Per spec the response signature is never verified by the client.
func unframe(key, ivPrefix []byte, seq int32, body []byte) ([]byte, error) {
	if len(body) < 32 {
		return nil, fmt.Errorf("%w: response body %d bytes, want >= 32", common.ErrProtocolError, len(body))
	}
	iv := append(append([]byte{}, ivPrefix...), int32BE(seq)...)
	plain, err := cryptoprim.AESCBCDecrypt(key, iv, body[32:])
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt response: %v", common.ErrProtocolError, err)
	}
	return plain, nil
}
