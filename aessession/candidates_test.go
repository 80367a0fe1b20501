package aessession

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokasa/kasa-core/credentials"
)

func TestBuildLoginCandidatesOrderWithCredentials(t *testing.T) {
	view := credentials.Merge(
		credentials.Options{Credentials: credentials.Credentials{Username: "user@example.com", Password: "secret"}},
		credentials.Options{},
	)
	candidates, err := buildLoginCandidates(view)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assert.Equal(t, "user-credentials-v2", candidates[0].label)
	assert.Equal(t, "user-credentials-v1", candidates[1].label)
	assert.Equal(t, "tapo-default-v2", candidates[2].label)
	assert.Equal(t, "tapo-default-v1", candidates[3].label)

	assert.Equal(t, b64(sha1Hex("user@example.com")), candidates[0].params["username"])
	assert.Equal(t, b64(sha1Hex("secret")), candidates[0].params["password2"])
	assert.Equal(t, b64("secret"), candidates[1].params["password"])
}

func TestBuildLoginCandidatesHashTakesPrecedence(t *testing.T) {
	raw := `{"username":"dXNlcg==","password2":"cGFzcw=="}`
	hash := credentials.Hash(base64.StdEncoding.EncodeToString([]byte(raw)))
	view := credentials.Merge(credentials.Options{CredentialsHash: hash}, credentials.Options{})

	candidates, err := buildLoginCandidates(view)
	require.NoError(t, err)
	assert.Equal(t, "credentials-hash", candidates[0].label)
	assert.Equal(t, "dXNlcg==", candidates[0].params["username"])
}

func TestDecodeCredentialsHashRejectsEmpty(t *testing.T) {
	_, err := decodeCredentialsHash("")
	assert.Error(t, err)
}

func TestDecodeCredentialsHashRejectsMissingPassword(t *testing.T) {
	raw := `{"username":"dXNlcg=="}`
	_, err := decodeCredentialsHash(credentials.Hash(base64.StdEncoding.EncodeToString([]byte(raw))))
	assert.Error(t, err)
}

func TestLoginCandidateStringNeverLeaksParams(t *testing.T) {
	c := loginCandidate{label: "user-credentials-v2", params: map[string]interface{}{"password2": "secret-b64"}}
	s := c.String()
	assert.NotContains(t, s, "secret-b64")
	assert.Contains(t, s, "user-credentials-v2")
}
