package jwt

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/jose"
)

func newIssuer(t *testing.T) *Issuer {
	t.Helper()
	key, err := jose.GenerateES256("k1")
	require.NoError(t, err)
	return NewIssuer(key)
}

func TestIssueIDToken_Claims(t *testing.T) {
	iss := newIssuer(t)
	authTime := time.Now().Add(-time.Minute).Truncate(time.Second)

	tok, exp, err := iss.IssueIDToken(IDTokenParams{
		Issuer:      "https://idp.example/acme",
		Subject:     "u1",
		Audience:    "app",
		Nonce:       "n-1",
		AuthTime:    authTime,
		TTL:         time.Hour,
		AccessToken: "at",
		Code:        "code",
		Claims:      map[string]any{"email": "ana@example.com"},
	})
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	claims, err := iss.ParseOwn(tok, "https://idp.example/acme")
	require.NoError(t, err)
	require.Equal(t, "u1", claims["sub"])
	require.Equal(t, "n-1", claims["nonce"])
	require.Equal(t, "ana@example.com", claims["email"])
	require.Equal(t, LeftHash("at"), claims["at_hash"])
	require.Equal(t, LeftHash("code"), claims["c_hash"])
	require.Equal(t, float64(authTime.Unix()), claims["auth_time"])
	require.NotContains(t, claims, "s_hash")
}

func TestParseOwn_RejectsForeignKeyAndIssuer(t *testing.T) {
	a := newIssuer(t)
	b := newIssuer(t)

	tok, _, err := a.IssueIDToken(IDTokenParams{Issuer: "https://a", Subject: "u1", Audience: "app", TTL: time.Minute})
	require.NoError(t, err)

	_, err = b.ParseOwn(tok, "")
	require.Error(t, err)

	_, err = a.ParseOwn(tok, "https://other")
	require.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestParseOwn_AcceptsExpiredHint(t *testing.T) {
	iss := newIssuer(t)
	iss.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := iss.IssueIDToken(IDTokenParams{Issuer: "https://a", Subject: "u1", Audience: "app", TTL: time.Minute})
	require.NoError(t, err)

	claims, err := iss.ParseOwn(tok, "https://a")
	require.NoError(t, err)
	require.Equal(t, "u1", claims["sub"])
}

func TestIssueJARM(t *testing.T) {
	iss := newIssuer(t)
	tok, err := iss.IssueJARM("https://a", "app", map[string]string{"code": "c1", "state": "s1"})
	require.NoError(t, err)

	parsed, err := jwtv5.Parse(tok, func(*jwtv5.Token) (any, error) { return iss.Key.Public(), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwtv5.MapClaims)
	require.Equal(t, "c1", claims["code"])
	require.Equal(t, "app", claims["aud"])
}

func TestLeftHash_KnownVector(t *testing.T) {
	// Primeros 16 bytes de SHA-256 en base64url sin padding.
	require.Equal(t, "ZBS3JIZPOjCF3h6UpzQmSQ", LeftHash("jHkWEdUXMU1BwAsC4vtUsZwnNqTvFgy3"))
}
