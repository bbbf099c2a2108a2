package repository

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// ServerConfiguration es la configuración del authorization server de un tenant.
// Las duraciones están en segundos.
type ServerConfiguration struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Issuer   string `json:"issuer" yaml:"issuer"`

	ResponseTypesSupported                 []string `json:"response_types_supported" yaml:"response_types_supported"`
	ResponseModesSupported                 []string `json:"response_modes_supported" yaml:"response_modes_supported"`
	GrantTypesSupported                    []string `json:"grant_types_supported" yaml:"grant_types_supported"`
	ScopesSupported                        []string `json:"scopes_supported" yaml:"scopes_supported"`
	ClaimsSupported                        []string `json:"claims_supported" yaml:"claims_supported"`
	TokenEndpointAuthMethodsSupported      []string `json:"token_endpoint_auth_methods_supported" yaml:"token_endpoint_auth_methods_supported"`
	RequestObjectSigningAlgValuesSupported []string `json:"request_object_signing_alg_values_supported" yaml:"request_object_signing_alg_values_supported"`
	BackchannelTokenDeliveryModesSupported []string `json:"backchannel_token_delivery_modes_supported" yaml:"backchannel_token_delivery_modes_supported"`

	FapiBaselineScopes []string `json:"fapi_baseline_scopes" yaml:"fapi_baseline_scopes"`
	FapiAdvanceScopes  []string `json:"fapi_advance_scopes" yaml:"fapi_advance_scopes"`

	DefaultMaxAge                   int64 `json:"default_max_age" yaml:"default_max_age"`
	AuthorizationCodeExpiresIn      int64 `json:"authorization_code_expires_in" yaml:"authorization_code_expires_in"`
	AuthorizationRequestExpiresIn   int64 `json:"authorization_request_expires_in" yaml:"authorization_request_expires_in"`
	AccessTokenExpiresIn            int64 `json:"access_token_expires_in" yaml:"access_token_expires_in"`
	RefreshTokenExpiresIn           int64 `json:"refresh_token_expires_in" yaml:"refresh_token_expires_in"`
	IDTokenExpiresIn                int64 `json:"id_token_expires_in" yaml:"id_token_expires_in"`
	OAuthSessionExpiresIn           int64 `json:"oauth_session_expires_in" yaml:"oauth_session_expires_in"`
	BackchannelAuthRequestExpiresIn int64 `json:"backchannel_auth_request_expires_in" yaml:"backchannel_auth_request_expires_in"`
	BackchannelPollingInterval      int64 `json:"backchannel_polling_interval" yaml:"backchannel_polling_interval"`

	TLSClientCertificateBoundAccessTokens bool `json:"tls_client_certificate_bound_access_tokens" yaml:"tls_client_certificate_bound_access_tokens"`
	IDTokenStrictMode                     bool `json:"id_token_strict_mode" yaml:"id_token_strict_mode"`
}

// Exists indica si la configuración fue cargada.
func (c ServerConfiguration) Exists() bool { return c.TenantID != "" }

func seconds(v int64) time.Duration { return time.Duration(v) * time.Second }

// AuthorizationCodeTTL devuelve la vida del code (default 10m).
func (c ServerConfiguration) AuthorizationCodeTTL() time.Duration {
	if c.AuthorizationCodeExpiresIn <= 0 {
		return 10 * time.Minute
	}
	return seconds(c.AuthorizationCodeExpiresIn)
}

// AuthorizationRequestTTL devuelve la vida de un AuthorizationRequest (default 30m).
func (c ServerConfiguration) AuthorizationRequestTTL() time.Duration {
	if c.AuthorizationRequestExpiresIn <= 0 {
		return 30 * time.Minute
	}
	return seconds(c.AuthorizationRequestExpiresIn)
}

// AccessTokenTTL devuelve la vida del access token (default 1h).
func (c ServerConfiguration) AccessTokenTTL() time.Duration {
	if c.AccessTokenExpiresIn <= 0 {
		return time.Hour
	}
	return seconds(c.AccessTokenExpiresIn)
}

// RefreshTokenTTL devuelve la vida del refresh token (default 30 días).
func (c ServerConfiguration) RefreshTokenTTL() time.Duration {
	if c.RefreshTokenExpiresIn <= 0 {
		return 30 * 24 * time.Hour
	}
	return seconds(c.RefreshTokenExpiresIn)
}

// IDTokenTTL devuelve la vida del id_token (default 1h).
func (c ServerConfiguration) IDTokenTTL() time.Duration {
	if c.IDTokenExpiresIn <= 0 {
		return time.Hour
	}
	return seconds(c.IDTokenExpiresIn)
}

// SessionTTL devuelve la vida máxima de una OAuthSession (default 24h).
func (c ServerConfiguration) SessionTTL() time.Duration {
	if c.OAuthSessionExpiresIn <= 0 {
		return 24 * time.Hour
	}
	return seconds(c.OAuthSessionExpiresIn)
}

// BackchannelExpiresIn devuelve la vida máxima de un CibaGrant en segundos
// (default 300). Es también el tope de requested_expiry.
func (c ServerConfiguration) BackchannelExpiresIn() int64 {
	if c.BackchannelAuthRequestExpiresIn <= 0 {
		return 300
	}
	return c.BackchannelAuthRequestExpiresIn
}

// BackchannelTTL es BackchannelExpiresIn como duración.
func (c ServerConfiguration) BackchannelTTL() time.Duration {
	return seconds(c.BackchannelExpiresIn())
}

// PollingInterval devuelve el intervalo mínimo de polling CIBA (default 5s).
func (c ServerConfiguration) PollingInterval() int64 {
	if c.BackchannelPollingInterval <= 0 {
		return 5
	}
	return c.BackchannelPollingInterval
}

// SupportsResponseType indica si el server soporta el response_type.
func (c ServerConfiguration) SupportsResponseType(rt types.ResponseType) bool {
	return containsNormalizedResponseType(c.ResponseTypesSupported, rt)
}

// SupportsResponseMode indica si el server soporta el response_mode (vacío siempre es válido).
func (c ServerConfiguration) SupportsResponseMode(m types.ResponseMode) bool {
	if m == types.ResponseModeUndefined {
		return true
	}
	return contains(c.ResponseModesSupported, string(m))
}

// SupportsGrantType indica si el server soporta el grant_type.
func (c ServerConfiguration) SupportsGrantType(g types.GrantType) bool {
	return contains(c.GrantTypesSupported, string(g))
}

// SupportsDeliveryMode indica si el server soporta el modo CIBA.
func (c ServerConfiguration) SupportsDeliveryMode(m types.DeliveryMode) bool {
	return contains(c.BackchannelTokenDeliveryModesSupported, string(m))
}

// SupportsClaim indica si el claim está en claims_supported.
func (c ServerConfiguration) SupportsClaim(name string) bool {
	return contains(c.ClaimsSupported, name)
}

// ClientConfiguration es la configuración registrada de un client.
type ClientConfiguration struct {
	TenantID                string   `json:"tenant_id" yaml:"tenant_id"`
	ClientID                string   `json:"client_id" yaml:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty" yaml:"client_secret"`
	ClientName              string   `json:"client_name,omitempty" yaml:"client_name"`
	RedirectURIs            []string `json:"redirect_uris" yaml:"redirect_uris"`
	ResponseTypes           []string `json:"response_types" yaml:"response_types"`
	GrantTypes              []string `json:"grant_types" yaml:"grant_types"`
	Scope                   string   `json:"scope" yaml:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method" yaml:"token_endpoint_auth_method"`

	// JWKS es el JSON Web Key Set del client (inline).
	JWKS                    string `json:"jwks,omitempty" yaml:"jwks"`
	RequestObjectSigningAlg string `json:"request_object_signing_alg,omitempty" yaml:"request_object_signing_alg"`
	RequirePKCE             bool   `json:"require_pkce,omitempty" yaml:"require_pkce"`

	TLSClientAuthSubjectDN                string `json:"tls_client_auth_subject_dn,omitempty" yaml:"tls_client_auth_subject_dn"`
	TLSClientCertificateBoundAccessTokens bool   `json:"tls_client_certificate_bound_access_tokens,omitempty" yaml:"tls_client_certificate_bound_access_tokens"`

	BackchannelTokenDeliveryMode          string `json:"backchannel_token_delivery_mode,omitempty" yaml:"backchannel_token_delivery_mode"`
	BackchannelClientNotificationEndpoint string `json:"backchannel_client_notification_endpoint,omitempty" yaml:"backchannel_client_notification_endpoint"`
	BackchannelAuthRequestSigningAlg      string `json:"backchannel_authentication_request_signing_alg,omitempty" yaml:"backchannel_authentication_request_signing_alg"`
	BackchannelUserCodeParameter          bool   `json:"backchannel_user_code_parameter,omitempty" yaml:"backchannel_user_code_parameter"`

	TosURI    string `json:"tos_uri,omitempty" yaml:"tos_uri"`
	PolicyURI string `json:"policy_uri,omitempty" yaml:"policy_uri"`
}

// Exists indica si la configuración fue cargada.
func (c ClientConfiguration) Exists() bool { return c.ClientID != "" }

// AuthMethod devuelve el método de autenticación (default client_secret_basic).
func (c ClientConfiguration) AuthMethod() types.ClientAuthMethod {
	if c.TokenEndpointAuthMethod == "" {
		return types.ClientAuthSecretBasic
	}
	return types.ClientAuthMethod(c.TokenEndpointAuthMethod)
}

// Scopes devuelve los scopes registrados.
func (c ClientConfiguration) Scopes() types.Scopes { return types.ParseScopes(c.Scope) }

// FilterScopes descarta los scopes no registrados para el client.
func (c ClientConfiguration) FilterScopes(requested types.Scopes) types.Scopes {
	return requested.Filter(c.Scopes())
}

// IsRegisteredRedirectURI compara de forma exacta (sin normalización).
func (c ClientConfiguration) IsRegisteredRedirectURI(uri string) bool {
	return contains(c.RedirectURIs, uri)
}

// IsMultiRegisteredRedirectURI indica si hay más de una redirect_uri registrada.
func (c ClientConfiguration) IsMultiRegisteredRedirectURI() bool {
	return len(c.RedirectURIs) > 1
}

// SupportsResponseType indica si el client registró el response_type.
func (c ClientConfiguration) SupportsResponseType(rt types.ResponseType) bool {
	return containsNormalizedResponseType(c.ResponseTypes, rt)
}

// SupportsGrantType indica si el client registró el grant_type.
func (c ClientConfiguration) SupportsGrantType(g types.GrantType) bool {
	return contains(c.GrantTypes, string(g))
}

// DeliveryMode devuelve el modo CIBA registrado (vacío si no aplica).
func (c ClientConfiguration) DeliveryMode() types.DeliveryMode {
	return types.DeliveryMode(c.BackchannelTokenDeliveryMode)
}

// IsCertificateBound indica si el client pide tokens ligados a certificado.
func (c ClientConfiguration) IsCertificateBound() bool {
	return c.TLSClientCertificateBoundAccessTokens
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsNormalizedResponseType(values []string, rt types.ResponseType) bool {
	for _, v := range values {
		if n, ok := types.ParseResponseType(strings.TrimSpace(v)); ok && n == rt {
			return true
		}
	}
	return false
}

// ServerConfigurationRepository carga la configuración del server por tenant.
type ServerConfigurationRepository interface {
	// Get obtiene la configuración del tenant.
	// Retorna ErrConfigurationNotFound si no existe.
	Get(ctx context.Context, tenantID string) (*ServerConfiguration, error)

	// Put crea o reemplaza la configuración.
	Put(ctx context.Context, cfg ServerConfiguration) error
}

// ClientConfigurationRepository carga la configuración de clients por tenant.
type ClientConfigurationRepository interface {
	// Get obtiene la configuración del client.
	// Retorna ErrConfigurationNotFound si no existe.
	Get(ctx context.Context, tenantID, clientID string) (*ClientConfiguration, error)

	// Put crea o reemplaza la configuración.
	Put(ctx context.Context, cfg ClientConfiguration) error
}
