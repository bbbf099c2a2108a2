package types

// GrantType es el grant_type del token endpoint.
type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeRefreshToken      GrantType = "refresh_token"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypePassword          GrantType = "password"
	GrantTypeCIBA              GrantType = "urn:openid:params:grant-type:ciba"
	GrantTypeImplicit          GrantType = "implicit"
)

// ParseGrantType devuelve ok=false si el grant_type no es soportado por el core.
func ParseGrantType(raw string) (GrantType, bool) {
	switch g := GrantType(raw); g {
	case GrantTypeAuthorizationCode, GrantTypeRefreshToken, GrantTypeClientCredentials,
		GrantTypePassword, GrantTypeCIBA, GrantTypeImplicit:
		return g, true
	}
	return "", false
}

// Profile es el perfil de seguridad aplicado a un request.
type Profile string

const (
	ProfileUndefined    Profile = "UNDEFINED"
	ProfileOAuth2       Profile = "OAUTH2"
	ProfileOIDC         Profile = "OIDC"
	ProfileFAPIBaseline Profile = "FAPI_BASELINE"
	ProfileFAPIAdvance  Profile = "FAPI_ADVANCE"
)

// ParseProfile devuelve ok=false ante un perfil desconocido.
func ParseProfile(raw string) (Profile, bool) {
	switch p := Profile(raw); p {
	case ProfileUndefined, ProfileOAuth2, ProfileOIDC, ProfileFAPIBaseline, ProfileFAPIAdvance:
		return p, true
	}
	return "", false
}

// IsFAPI indica si el perfil es FAPI (baseline o advance).
func (p Profile) IsFAPI() bool { return p == ProfileFAPIBaseline || p == ProfileFAPIAdvance }

// IdentifyProfile determina el perfil a partir de los scopes ya filtrados.
// FAPI advance tiene prioridad sobre baseline, y ambos sobre OIDC.
func IdentifyProfile(scopes Scopes, fapiBaseline, fapiAdvance []string) Profile {
	switch {
	case scopes.ContainsAny(fapiAdvance):
		return ProfileFAPIAdvance
	case scopes.ContainsAny(fapiBaseline):
		return ProfileFAPIBaseline
	case scopes.HasOpenID():
		return ProfileOIDC
	default:
		return ProfileOAuth2
	}
}

// ClientAuthMethod es el token_endpoint_auth_method de un client.
type ClientAuthMethod string

const (
	ClientAuthSecretBasic   ClientAuthMethod = "client_secret_basic"
	ClientAuthSecretPost    ClientAuthMethod = "client_secret_post"
	ClientAuthSecretJWT     ClientAuthMethod = "client_secret_jwt"
	ClientAuthPrivateKeyJWT ClientAuthMethod = "private_key_jwt"
	ClientAuthTLS           ClientAuthMethod = "tls_client_auth"
	ClientAuthSelfSignedTLS ClientAuthMethod = "self_signed_tls_client_auth"
	ClientAuthNone          ClientAuthMethod = "none"
)

// ParseClientAuthMethod devuelve ok=false ante un método desconocido.
func ParseClientAuthMethod(raw string) (ClientAuthMethod, bool) {
	switch m := ClientAuthMethod(raw); m {
	case ClientAuthSecretBasic, ClientAuthSecretPost, ClientAuthSecretJWT, ClientAuthPrivateKeyJWT,
		ClientAuthTLS, ClientAuthSelfSignedTLS, ClientAuthNone:
		return m, true
	}
	return "", false
}

// IsSharedSecret indica si el método depende del client_secret.
func (m ClientAuthMethod) IsSharedSecret() bool {
	return m == ClientAuthSecretBasic || m == ClientAuthSecretPost || m == ClientAuthSecretJWT
}

// IsMTLS indica si el método autentica por certificado.
func (m ClientAuthMethod) IsMTLS() bool {
	return m == ClientAuthTLS || m == ClientAuthSelfSignedTLS
}

// IsPublic indica un client sin credenciales.
func (m ClientAuthMethod) IsPublic() bool { return m == ClientAuthNone }

// CodeChallengeMethod es el método PKCE.
type CodeChallengeMethod string

const (
	CodeChallengePlain CodeChallengeMethod = "plain"
	CodeChallengeS256  CodeChallengeMethod = "S256"
)

// ParseCodeChallengeMethod aplica el default "plain" de RFC 7636 cuando viene vacío.
func ParseCodeChallengeMethod(raw string) (CodeChallengeMethod, bool) {
	switch raw {
	case "":
		return CodeChallengePlain, true
	case string(CodeChallengePlain):
		return CodeChallengePlain, true
	case string(CodeChallengeS256):
		return CodeChallengeS256, true
	}
	return "", false
}
