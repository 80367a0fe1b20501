package klap

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"

	linq "github.com/ahmetb/go-linq/v3"

	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/cryptoprim"
)

// authVersion selects which of the two challenge-hash schemes a candidate
// uses.
type authVersion int

const (
	authV1 authVersion = 1
	authV2 authVersion = 2
)

// authCandidate is one credential/hash variant tried during the KLAP
// handshake, in the order defined by buildCandidateList.
type authCandidate struct {
	label   string
	version authVersion
	hash    []byte // 16 bytes for v1 (MD5), 32 bytes for v2 (SHA-256)
}

// String never renders the hash, only the label, so logging a candidate
// during a handshake attempt can't leak key material.
func (c authCandidate) String() string {
	return "authCandidate{" + c.label + "}"
}

// authHashV1 = md5(md5(username) || md5(password)).
func authHashV1(username, password string) []byte {
	return cryptoprim.MD5(append(cryptoprim.MD5([]byte(username)), cryptoprim.MD5([]byte(password))...))
}

// authHashV2 = sha256(sha1(username) || sha1(password)).
func authHashV2(username, password string) []byte {
	return cryptoprim.SHA256(append(cryptoprim.SHA1([]byte(username)), cryptoprim.SHA1([]byte(password))...))
}

const (
	kasaDefaultUsername = "kasa@tp-link.net"
	kasaDefaultPassword = "kasaSetup"
	tapoDefaultUsername = "test@tp-link.net"
	tapoDefaultPassword = "test"
)

// candidatesForCredentials returns the v2 and v1 auth-hash candidates for
// one username/password pair, in that order.
func candidatesForCredentials(label, username, password string) []authCandidate {
	return []authCandidate{
		{label: label + "-v2", version: authV2, hash: authHashV2(username, password)},
		{label: label + "-v1", version: authV1, hash: authHashV1(username, password)},
	}
}

// buildCandidateList assembles the ordered, deduplicated candidate list:
// user hash; user credentials (v2, v1); KASA defaults (v2, v1); TAPO
// defaults (v2, v1); blank ("", "") (v2, v1). The user hash yields a single
// candidate whose version follows its decoded length (32 bytes: v2, 16
// bytes: v1); it is not tried under the other version.
//
// The concatenate-then-Distinct shape mirrors the corpus's own use of
// go-linq for order-preserving list dedup: five independently generated
// sources are chained and then Distinct-ed on (version, hex(hash)) while
// keeping first-occurrence order, rather than a hand-rolled seen-map loop.
func buildCandidateList(view credentials.MergedView) ([]authCandidate, error) {
	var all []authCandidate

	if view.HasHash() {
		raw, err := base64.StdEncoding.DecodeString(string(view.Hash()))
		if err != nil {
			return nil, err
		}
		switch len(raw) {
		case 32:
			all = append(all, authCandidate{label: "user-hash-v2", version: authV2, hash: raw})
		case 16:
			all = append(all, authCandidate{label: "user-hash-v1", version: authV1, hash: raw})
		default:
			// A hash of unexpected length can't correspond to either
			// scheme; skip it rather than fail outright, since the
			// remaining candidate sources may still authenticate.
		}
	}

	if view.Username != "" {
		all = append(all, candidatesForCredentials("user-credentials", view.Username, view.Password())...)
	}

	all = append(all, candidatesForCredentials("kasa-default", kasaDefaultUsername, kasaDefaultPassword)...)
	all = append(all, candidatesForCredentials("tapo-default", tapoDefaultUsername, tapoDefaultPassword)...)
	all = append(all, candidatesForCredentials("blank", "", "")...)

	var deduped []authCandidate
	linq.From(all).DistinctBy(func(c interface{}) interface{} {
		cand := c.(authCandidate)
		return strconv.Itoa(int(cand.version)) + ":" + hex.EncodeToString(cand.hash)
	}).ToSlice(&deduped)

	return deduped, nil
}
