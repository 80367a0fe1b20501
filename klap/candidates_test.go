package klap

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokasa/kasa-core/credentials"
)

func TestBuildCandidateListOrderAndDefaults(t *testing.T) {
	view := credentials.Merge(
		credentials.Options{Credentials: credentials.Credentials{Username: "user@example.com", Password: "secret"}},
		credentials.Options{},
	)

	candidates, err := buildCandidateList(view)
	require.NoError(t, err)
	require.True(t, len(candidates) >= 8)

	assert.Equal(t, "user-credentials-v2", candidates[0].label)
	assert.Equal(t, "user-credentials-v1", candidates[1].label)
	assert.Equal(t, "kasa-default-v2", candidates[2].label)
	assert.Equal(t, "blank-v1", candidates[len(candidates)-1].label)
}

func TestBuildCandidateListDedupesIdenticalHashes(t *testing.T) {
	// A user who happens to authenticate with the KASA default
	// credentials produces identical v2/v1 hashes for both the
	// "user-credentials" and "kasa-default" sources; they collapse to a
	// single pair instead of being tried twice.
	view := credentials.Merge(
		credentials.Options{Credentials: credentials.Credentials{Username: "kasa@tp-link.net", Password: "kasaSetup"}},
		credentials.Options{},
	)
	candidates, err := buildCandidateList(view)
	require.NoError(t, err)
	assert.Equal(t, 6, len(candidates))
	assert.Equal(t, "user-credentials-v2", candidates[0].label)
}

func TestBuildCandidateListNoDedupeAcrossDistinctDefaults(t *testing.T) {
	view := credentials.Merge(credentials.Options{}, credentials.Options{})
	candidates, err := buildCandidateList(view)
	require.NoError(t, err)
	assert.Equal(t, 6, len(candidates))
}

func TestBuildCandidateListUsesHashWhenPresent(t *testing.T) {
	view := credentials.Merge(
		credentials.Options{CredentialsHash: credentials.Hash(base64.StdEncoding.EncodeToString(make([]byte, 32)))},
		credentials.Options{},
	)
	candidates, err := buildCandidateList(view)
	require.NoError(t, err)
	assert.Equal(t, "user-hash-v2", candidates[0].label)
}

func TestAuthCandidateStringNeverLeaksHash(t *testing.T) {
	c := authCandidate{label: "kasa-default-v2", version: authV2, hash: []byte("secret-hash-material")}
	s := c.String()
	assert.NotContains(t, s, "secret-hash-material")
	assert.Contains(t, s, "kasa-default-v2")
}
