package aessession

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/credentials"
	"github.com/gokasa/kasa-core/cryptoprim"
)

// loginCandidate is one login_device params variant tried in order during
// the AES login phase.
type loginCandidate struct {
	label  string
	params map[string]interface{}
}

// String never renders params, since they may carry an encoded password,
// only the label.
func (c loginCandidate) String() string { return "loginCandidate{" + c.label + "}" }

const (
	tapoDefaultUsername = "test@tp-link.net"
	tapoDefaultPassword = "test"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func sha1Hex(s string) string { return hex.EncodeToString(cryptoprim.SHA1([]byte(s))) }

// loginParamsV2 encodes username/password per spec §4.3: username is always
// base64(sha1_hex(username)); v2 sends password as "password2" =
// base64(sha1_hex(password)).
func loginParamsV2(username, password string) map[string]interface{} {
	return map[string]interface{}{
		"username":  b64(sha1Hex(username)),
		"password2": b64(sha1Hex(password)),
	}
}

// loginParamsV1 sends password as plain base64, not hashed.
func loginParamsV1(username, password string) map[string]interface{} {
	return map[string]interface{}{
		"username": b64(sha1Hex(username)),
		"password": b64(password),
	}
}

// buildLoginCandidates assembles the ordered AES login candidate list per
// spec §3/§4.3: explicit credentialsHash; user credentials v2, v1;
// default-TAPO v2, v1.
func buildLoginCandidates(view credentials.MergedView) ([]loginCandidate, error) {
	var candidates []loginCandidate

	if view.HasHash() {
		params, err := decodeCredentialsHash(view.Hash())
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, loginCandidate{label: "credentials-hash", params: params})
	}

	if view.Username != "" {
		candidates = append(candidates,
			loginCandidate{label: "user-credentials-v2", params: loginParamsV2(view.Username, view.Password())},
			loginCandidate{label: "user-credentials-v1", params: loginParamsV1(view.Username, view.Password())},
		)
	}

	candidates = append(candidates,
		loginCandidate{label: "tapo-default-v2", params: loginParamsV2(tapoDefaultUsername, tapoDefaultPassword)},
		loginCandidate{label: "tapo-default-v1", params: loginParamsV1(tapoDefaultUsername, tapoDefaultPassword)},
	)

	return candidates, nil
}

// decodeCredentialsHash decodes a base64 JSON object {username,
// password|password2} and validates it carries a username and at least one
// password field, per spec §4.3's credentialsHash path.
func decodeCredentialsHash(hash credentials.Hash) (map[string]interface{}, error) {
	if hash == "" {
		return nil, fmt.Errorf("%w: empty credentialsHash", common.ErrInvalidCredentials)
	}
	raw, err := base64.StdEncoding.DecodeString(string(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding credentialsHash: %v", common.ErrInvalidCredentials, err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: credentialsHash is not valid JSON: %v", common.ErrInvalidCredentials, err)
	}
	username, _ := params["username"].(string)
	_, hasPassword := params["password"]
	_, hasPassword2 := params["password2"]
	if username == "" || (!hasPassword && !hasPassword2) {
		return nil, fmt.Errorf("%w: credentialsHash missing username or password/password2", common.ErrInvalidCredentials)
	}
	return params, nil
}
