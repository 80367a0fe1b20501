// Package cryptoprim implements the low-level cryptographic primitives the
// KLAP and AES session engines build on: hashing, AES-128-CBC, and the
// PKCS#1 v1.5 RSA handling devices expect. Nothing here is generic
// "provide a KDF" crypto — every function matches a byte-exact requirement
// from a device wire protocol, which is why it sits on stdlib rather than a
// higher-level crypto library (see DESIGN.md).
package cryptoprim

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
)

// MD5 returns the raw 16-byte MD5 digest of b.
func MD5(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

// SHA1 returns the raw 20-byte SHA-1 digest of b.
func SHA1(b []byte) []byte {
	sum := sha1.Sum(b)
	return sum[:]
}

// SHA256 returns the raw 32-byte SHA-256 digest of b.
func SHA256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// SHA256Concat hashes the concatenation of parts without allocating an
// intermediate slice per call site; every KLAP derivation
// (key/iv/signature/candidate-hash) is exactly this shape.
func SHA256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
