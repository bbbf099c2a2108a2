// Package testutil reúne fixtures compartidas por los tests de los handlers:
// configuración de tenant, clients, claves de firma y seed del store en memoria.
package testutil

import (
	"context"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/store"
)

const (
	Tenant      = "acme"
	Issuer      = "https://idp.example/acme"
	RedirectURI = "https://rp.example/cb"
)

// ServerConfig es la configuración de server usada por los tests.
func ServerConfig() repository.ServerConfiguration {
	return repository.ServerConfiguration{
		TenantID: Tenant,
		Issuer:   Issuer,
		ResponseTypesSupported: []string{
			"code", "token", "id_token", "code token", "code id_token", "id_token token", "code id_token token", "none",
		},
		ResponseModesSupported: []string{"query", "fragment", "form_post", "jwt", "query.jwt", "fragment.jwt", "form_post.jwt"},
		GrantTypesSupported: []string{
			"authorization_code", "refresh_token", "client_credentials", "password", "urn:openid:params:grant-type:ciba",
		},
		ScopesSupported: []string{"openid", "profile", "email", "phone", "address", "offline_access", "read", "write", "fapi:read", "fapi:write"},
		ClaimsSupported: []string{
			"sub", "name", "given_name", "family_name", "preferred_username", "email", "email_verified", "phone_number",
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic", "client_secret_post", "client_secret_jwt", "private_key_jwt",
			"tls_client_auth", "self_signed_tls_client_auth", "none",
		},
		RequestObjectSigningAlgValuesSupported: []string{"RS256", "PS256", "ES256"},
		BackchannelTokenDeliveryModesSupported: []string{"poll", "ping", "push"},
		FapiBaselineScopes:                     []string{"fapi:read"},
		FapiAdvanceScopes:                      []string{"fapi:write"},
		AuthorizationCodeExpiresIn:             600,
		AccessTokenExpiresIn:                   3600,
		RefreshTokenExpiresIn:                  86400,
		IDTokenExpiresIn:                       3600,
		OAuthSessionExpiresIn:                  3600,
		BackchannelAuthRequestExpiresIn:        300,
		BackchannelPollingInterval:             5,
		TLSClientCertificateBoundAccessTokens:  true,
	}
}

// ClientConfig es un client confidencial con client_secret_basic.
func ClientConfig(clientID string) repository.ClientConfiguration {
	return repository.ClientConfiguration{
		TenantID:                Tenant,
		ClientID:                clientID,
		ClientSecret:            "s3cret",
		ClientName:              clientID,
		RedirectURIs:            []string{RedirectURI},
		ResponseTypes:           []string{"code", "code id_token", "token", "id_token", "code token", "code id_token token", "id_token token"},
		GrantTypes:              []string{"authorization_code", "refresh_token", "client_credentials", "password", "urn:openid:params:grant-type:ciba"},
		Scope:                   "openid profile email phone offline_access read write fapi:read fapi:write",
		TokenEndpointAuthMethod: "client_secret_basic",
	}
}

// User es el usuario de prueba.
func User() repository.User {
	return repository.User{
		Sub:               "user-1",
		PreferredUsername: "alice",
		Name:              "Alice Example",
		Email:             "alice@example.com",
		EmailVerified:     true,
		PhoneNumber:       "+15550100",
	}
}

// Authentication es una autenticación con password hecha en now.
func Authentication(now time.Time) repository.Authentication {
	return repository.Authentication{Time: now, Methods: []string{"pwd"}, ACR: "urn:acr:pwd"}
}

// Seed persiste la configuración del server, los clients y el usuario.
func Seed(t *testing.T, dal store.DataAccessLayer, server repository.ServerConfiguration, clients ...repository.ClientConfiguration) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, dal.ServerConfigurations().Put(ctx, server))
	for _, c := range clients {
		require.NoError(t, dal.ClientConfigurations().Put(ctx, c))
	}
	require.NoError(t, dal.Users().Put(ctx, server.TenantID, User()))
}

// SigningKey genera una clave ES256 de client.
func SigningKey(t *testing.T, kid string) *jose.SigningKey {
	t.Helper()
	key, err := jose.GenerateES256(kid)
	require.NoError(t, err)
	return key
}

// JWKS devuelve el JWKS público de la clave.
func JWKS(t *testing.T, key *jose.SigningKey) string {
	t.Helper()
	b, err := key.JWKSJSON()
	require.NoError(t, err)
	return string(b)
}

// Sign firma los claims con ES256 y el kid de la clave.
func Sign(t *testing.T, key *jose.SigningKey, claims jwtv5.MapClaims) string {
	t.Helper()
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = key.KID
	s, err := tk.SignedString(key.Private)
	require.NoError(t, err)
	return s
}

// Unsigned arma un JWT con alg "none".
func Unsigned(t *testing.T, claims jwtv5.MapClaims) string {
	t.Helper()
	s, err := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, claims).SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return s
}
