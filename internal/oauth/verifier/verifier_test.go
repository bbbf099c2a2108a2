package verifier

import (
	"net/url"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/security/pkce"
	"github.com/dropDatabas3/idpserver/internal/testutil"
)

const verifierValue = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

func build(t *testing.T, client repository.ClientConfiguration, v url.Values) *request.Context {
	t.Helper()
	c, err := request.Build(testutil.Tenant, request.NewParameters(v), testutil.ServerConfig(), client, time.Now())
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, code string) *oautherr.Error {
	t.Helper()
	require.Error(t, err)
	oe := oautherr.From(err)
	require.Equal(t, code, oe.Code, oe.Error())
	return oe
}

func baseParams() url.Values {
	return url.Values{
		"client_id":     {"app"},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"redirect_uri":  {testutil.RedirectURI},
		"state":         {"xyz"},
	}
}

func TestOIDC_OK(t *testing.T) {
	c := build(t, testutil.ClientConfig("app"), baseParams())
	require.Equal(t, types.ProfileOIDC, c.Request.Profile)
	require.NoError(t, Verify(c))
}

func TestBase_Errors(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(url.Values)
		code       string
		redirected bool
	}{
		{"unregistered redirect", func(v url.Values) { v.Set("redirect_uri", "https://evil.example/cb") }, oautherr.CodeInvalidRequest, false},
		{"missing redirect for openid", func(v url.Values) { v.Del("redirect_uri") }, oautherr.CodeInvalidRequest, false},
		{"missing response_type", func(v url.Values) { v.Del("response_type") }, oautherr.CodeInvalidRequest, true},
		{"unknown response_type", func(v url.Values) { v.Set("response_type", "code device") }, oautherr.CodeInvalidRequest, true},
		{"no valid scope", func(v url.Values) { v.Set("scope", "unknown") }, oautherr.CodeInvalidScope, true},
		{"invalid prompt", func(v url.Values) { v.Set("prompt", "none login") }, oautherr.CodeInvalidRequest, true},
		{"invalid max_age", func(v url.Values) { v.Set("max_age", "-1") }, oautherr.CodeInvalidRequest, true},
		{"invalid display", func(v url.Values) { v.Set("display", "tv") }, oautherr.CodeInvalidRequest, true},
		{"hybrid without nonce", func(v url.Values) { v.Set("response_type", "code id_token") }, oautherr.CodeInvalidRequest, true},
		{"malformed challenge", func(v url.Values) { v.Set("code_challenge", "short") }, oautherr.CodeInvalidRequest, true},
		{"bad authorization_details", func(v url.Values) { v.Set("authorization_details", `[{"actions":["read"]}]`) }, oautherr.CodeInvalidAuthzDetails, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := baseParams()
			tc.mutate(v)
			oe := requireCode(t, Verify(build(t, testutil.ClientConfig("app"), v)), tc.code)
			require.Equal(t, tc.redirected, oe.IsRedirectable())
		})
	}
}

func TestBase_UnsupportedResponseTypeByClient(t *testing.T) {
	client := testutil.ClientConfig("app")
	client.ResponseTypes = []string{"code"}
	v := baseParams()
	v.Set("response_type", "token")
	requireCode(t, Verify(build(t, client, v)), oautherr.CodeUnauthorizedClient)
}

func TestBase_ClientRequiresPKCE(t *testing.T) {
	client := testutil.ClientConfig("app")
	client.RequirePKCE = true
	requireCode(t, Verify(build(t, client, baseParams())), oautherr.CodeInvalidRequest)

	v := baseParams()
	v.Set("code_challenge", pkce.S256(verifierValue))
	v.Set("code_challenge_method", "S256")
	require.NoError(t, Verify(build(t, client, v)))
}

func fapiClient() repository.ClientConfiguration {
	c := testutil.ClientConfig("app")
	c.TokenEndpointAuthMethod = "private_key_jwt"
	c.RedirectURIs = []string{testutil.RedirectURI, "http://rp.example/cb"}
	return c
}

func fapiBaselineParams() url.Values {
	return url.Values{
		"client_id":             {"app"},
		"response_type":         {"code"},
		"scope":                 {"openid fapi:read"},
		"redirect_uri":          {testutil.RedirectURI},
		"nonce":                 {"n-1"},
		"code_challenge":        {pkce.S256(verifierValue)},
		"code_challenge_method": {"S256"},
	}
}

func TestFAPIBaseline(t *testing.T) {
	c := build(t, fapiClient(), fapiBaselineParams())
	require.Equal(t, types.ProfileFAPIBaseline, c.Request.Profile)
	require.NoError(t, Verify(c))

	t.Run("http redirect", func(t *testing.T) {
		v := fapiBaselineParams()
		v.Set("redirect_uri", "http://rp.example/cb")
		oe := requireCode(t, Verify(build(t, fapiClient(), v)), oautherr.CodeInvalidRequest)
		require.False(t, oe.IsRedirectable())
	})
	t.Run("plain pkce", func(t *testing.T) {
		v := fapiBaselineParams()
		v.Set("code_challenge", verifierValue)
		v.Set("code_challenge_method", "plain")
		requireCode(t, Verify(build(t, fapiClient(), v)), oautherr.CodeInvalidRequest)
	})
	t.Run("missing pkce", func(t *testing.T) {
		v := fapiBaselineParams()
		v.Del("code_challenge")
		v.Del("code_challenge_method")
		requireCode(t, Verify(build(t, fapiClient(), v)), oautherr.CodeInvalidRequest)
	})
	t.Run("client_secret_basic", func(t *testing.T) {
		client := fapiClient()
		client.TokenEndpointAuthMethod = "client_secret_basic"
		requireCode(t, Verify(build(t, client, fapiBaselineParams())), oautherr.CodeUnauthorizedClient)
	})
}

type fapiAdvanceFixture struct {
	client repository.ClientConfiguration
	sign   func(claims jwtv5.MapClaims) string
}

func newFAPIAdvanceFixture(t *testing.T) fapiAdvanceFixture {
	key := testutil.SigningKey(t, "rp-1")
	client := fapiClient()
	client.JWKS = testutil.JWKS(t, key)
	client.TLSClientCertificateBoundAccessTokens = true
	return fapiAdvanceFixture{
		client: client,
		sign:   func(claims jwtv5.MapClaims) string { return testutil.Sign(t, key, claims) },
	}
}

func fapiAdvanceClaims(now time.Time) jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss":           "app",
		"aud":           testutil.Issuer,
		"client_id":     "app",
		"response_type": "code id_token",
		"scope":         "openid fapi:write",
		"redirect_uri":  testutil.RedirectURI,
		"nonce":         "n-1",
		"state":         "s-1",
		"nbf":           now.Unix(),
		"exp":           now.Add(30 * time.Minute).Unix(),
	}
}

func TestFAPIAdvance(t *testing.T) {
	f := newFAPIAdvanceFixture(t)
	now := time.Now()

	c := build(t, f.client, url.Values{"client_id": {"app"}, "request": {f.sign(fapiAdvanceClaims(now))}})
	require.Equal(t, request.PatternFAPIAdvance, c.Pattern)
	require.NoError(t, Verify(c))

	t.Run("code with jwt response mode", func(t *testing.T) {
		claims := fapiAdvanceClaims(now)
		claims["response_type"] = "code"
		claims["response_mode"] = "jwt"
		require.NoError(t, Verify(build(t, f.client, url.Values{"client_id": {"app"}, "request": {f.sign(claims)}})))
	})
	t.Run("plain code rejected", func(t *testing.T) {
		claims := fapiAdvanceClaims(now)
		claims["response_type"] = "code"
		requireCode(t, Verify(build(t, f.client, url.Values{"client_id": {"app"}, "request": {f.sign(claims)}})), oautherr.CodeInvalidRequest)
	})
	t.Run("lifetime over 60 minutes", func(t *testing.T) {
		claims := fapiAdvanceClaims(now)
		claims["exp"] = now.Add(61 * time.Minute).Unix()
		requireCode(t, Verify(build(t, f.client, url.Values{"client_id": {"app"}, "request": {f.sign(claims)}})), oautherr.CodeInvalidRequestObject)
	})
	t.Run("missing nbf", func(t *testing.T) {
		claims := fapiAdvanceClaims(now)
		delete(claims, "nbf")
		requireCode(t, Verify(build(t, f.client, url.Values{"client_id": {"app"}, "request": {f.sign(claims)}})), oautherr.CodeInvalidRequestObject)
	})
	t.Run("without request object", func(t *testing.T) {
		v := url.Values{
			"client_id":     {"app"},
			"response_type": {"code id_token"},
			"scope":         {"openid fapi:write"},
			"redirect_uri":  {testutil.RedirectURI},
			"nonce":         {"n-1"},
		}
		requireCode(t, Verify(build(t, f.client, v)), oautherr.CodeInvalidRequest)
	})
	t.Run("unsigned request object", func(t *testing.T) {
		client := f.client
		client.RequestObjectSigningAlg = "none"
		raw := testutil.Unsigned(t, fapiAdvanceClaims(now))
		requireCode(t, Verify(build(t, client, url.Values{"client_id": {"app"}, "request": {raw}})), oautherr.CodeInvalidRequestObject)
	})
	t.Run("not certificate bound", func(t *testing.T) {
		client := f.client
		client.TLSClientCertificateBoundAccessTokens = false
		requireCode(t, Verify(build(t, client, url.Values{"client_id": {"app"}, "request": {f.sign(fapiAdvanceClaims(now))}})), oautherr.CodeInvalidRequest)
	})
	t.Run("shared secret client", func(t *testing.T) {
		client := f.client
		client.TokenEndpointAuthMethod = "client_secret_jwt"
		requireCode(t, Verify(build(t, client, url.Values{"client_id": {"app"}, "request": {f.sign(fapiAdvanceClaims(now))}})), oautherr.CodeUnauthorizedClient)
	})
}

func TestFor_UnknownProfile(t *testing.T) {
	_, err := For(types.ProfileUndefined)
	require.Error(t, err)
}
