package pkce

import (
	"strings"
	"testing"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/stretchr/testify/require"
)

// Vector del apéndice B de RFC 7636.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mJ92K9ekEpJK2ZmClIRiunJfR8-3Q3"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func TestS256MatchesRFCVector(t *testing.T) {
	require.Equal(t, rfcChallenge, S256(rfcVerifier))
	require.True(t, Verify(types.CodeChallengeS256, rfcChallenge, rfcVerifier))
}

func TestVerifyRejectsMismatch(t *testing.T) {
	other := strings.Repeat("a", 43)
	require.False(t, Verify(types.CodeChallengeS256, rfcChallenge, other))
}

func TestVerifyPlain(t *testing.T) {
	v := strings.Repeat("x", 50)
	require.True(t, Verify(types.CodeChallengePlain, v, v))
	require.False(t, Verify(types.CodeChallengePlain, v, v+"y"))
}

func TestVerifyRejectsMalformedVerifier(t *testing.T) {
	short := "abc"
	require.False(t, Verify(types.CodeChallengePlain, short, short))
	require.False(t, Verify(types.CodeChallengeS256, "", rfcVerifier))
}
