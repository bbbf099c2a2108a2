// Package pkce verifica code_verifiers contra el code_challenge registrado (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// verifierPattern es la gramática de RFC 7636 §4.1: 43 a 128 caracteres unreserved.
var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// ValidVerifier indica si el code_verifier cumple la gramática.
func ValidVerifier(verifier string) bool {
	return verifierPattern.MatchString(verifier)
}

// S256 devuelve BASE64URL(SHA256(verifier)).
func S256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Transform aplica el método al verifier.
func Transform(method types.CodeChallengeMethod, verifier string) (string, bool) {
	switch method {
	case types.CodeChallengeS256:
		return S256(verifier), true
	case types.CodeChallengePlain:
		return verifier, true
	}
	return "", false
}

// Verify compara en tiempo constante la transformación del verifier con el challenge.
func Verify(method types.CodeChallengeMethod, challenge, verifier string) bool {
	if challenge == "" || !ValidVerifier(verifier) {
		return false
	}
	got, ok := Transform(method, verifier)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(challenge)) == 1
}
