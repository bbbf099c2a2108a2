package repository

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// PKCEChallenge es el code_challenge registrado en el request.
// Un puntero nil significa "no se pidió PKCE", distinto de un challenge vacío.
type PKCEChallenge struct {
	Challenge string                    `json:"code_challenge"`
	Method    types.CodeChallengeMethod `json:"code_challenge_method"`
}

// RequestedClaims es el parámetro claims de OIDC ya parseado.
type RequestedClaims struct {
	IDToken  map[string]json.RawMessage `json:"id_token,omitempty"`
	UserInfo map[string]json.RawMessage `json:"userinfo,omitempty"`
}

// ParseRequestedClaims parsea el JSON del parámetro claims. Vacío es válido.
func ParseRequestedClaims(raw string) (RequestedClaims, error) {
	var out RequestedClaims
	if raw == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(raw), &out)
	return out, err
}

// IDTokenNames devuelve los nombres pedidos para el id_token, ordenados.
func (c RequestedClaims) IDTokenNames() []string { return keys(c.IDToken) }

// UserInfoNames devuelve los nombres pedidos para userinfo, ordenados.
func (c RequestedClaims) UserInfoNames() []string { return keys(c.UserInfo) }

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validity registra errores sintácticos detectados por la factory.
// No se persiste: el verifier lo rechaza antes de registrar el request.
type Validity struct {
	InvalidDisplay bool
	InvalidPrompt  bool
	InvalidMaxAge  bool

	UnknownResponseType         bool
	InvalidResponseMode         bool
	InvalidCodeChallengeMethod  bool
	InvalidClaims               bool
	InvalidAuthorizationDetails bool
}

// AuthorizationRequest es el registro inmutable de un intento de autorización.
type AuthorizationRequest struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	Profile      types.Profile      `json:"profile"`
	Scopes       types.Scopes       `json:"scopes"`
	ResponseType types.ResponseType `json:"response_type"`
	ResponseMode types.ResponseMode `json:"response_mode,omitempty"`
	ClientID     string             `json:"client_id"`
	RedirectURI  string             `json:"redirect_uri,omitempty"`
	State        string             `json:"state,omitempty"`
	Nonce        string             `json:"nonce,omitempty"`
	Display      string             `json:"display,omitempty"`
	Prompts      types.Prompts      `json:"prompts,omitempty"`
	// MaxAge en segundos; nil significa no especificado.
	MaxAge               *int64               `json:"max_age,omitempty"`
	UILocales            string               `json:"ui_locales,omitempty"`
	ClaimsLocales        string               `json:"claims_locales,omitempty"`
	IDTokenHint          string               `json:"id_token_hint,omitempty"`
	LoginHint            string               `json:"login_hint,omitempty"`
	ACRValues            string               `json:"acr_values,omitempty"`
	ClaimsValue          string               `json:"claims,omitempty"`
	RequestedClaims      RequestedClaims      `json:"requested_claims"`
	Request              string               `json:"request,omitempty"`
	RequestURI           string               `json:"request_uri,omitempty"`
	PKCE                 *PKCEChallenge       `json:"pkce,omitempty"`
	AuthorizationDetails AuthorizationDetails `json:"authorization_details,omitempty"`
	CustomParams         map[string]string    `json:"custom_params,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	ExpiresAt            time.Time            `json:"expires_at"`

	Validity Validity `json:"-"`
}

// Exists indica si el request fue encontrado.
func (r AuthorizationRequest) Exists() bool { return r.ID != "" }

// HasRedirectURI indica si el request trajo redirect_uri explícita.
func (r AuthorizationRequest) HasRedirectURI() bool { return r.RedirectURI != "" }

// IsPKCE indica si el request registró un code_challenge.
func (r AuthorizationRequest) IsPKCE() bool { return r.PKCE != nil }

// IsPromptNone indica prompt=none.
func (r AuthorizationRequest) IsPromptNone() bool { return r.Prompts.Has(types.PromptNone) }

// IsPromptCreate indica prompt=create.
func (r AuthorizationRequest) IsPromptCreate() bool { return r.Prompts.Has(types.PromptCreate) }

// IsOIDC indica si el request incluye el scope openid.
func (r AuthorizationRequest) IsOIDC() bool { return r.Scopes.HasOpenID() }

// MaxAgeOrZero devuelve max_age o 0 cuando no fue especificado.
func (r AuthorizationRequest) MaxAgeOrZero() int64 {
	if r.MaxAge == nil {
		return 0
	}
	return *r.MaxAge
}

// AuthorizationRequestRepository persiste AuthorizationRequests.
type AuthorizationRequestRepository interface {
	// Register persiste un request nuevo.
	Register(ctx context.Context, tenantID string, req AuthorizationRequest) error

	// Get obtiene un request por ID.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, tenantID, id string) (*AuthorizationRequest, error)

	// Find obtiene un request por ID.
	// Retorna el valor cero (Exists() == false) si no existe.
	Find(ctx context.Context, tenantID, id string) (AuthorizationRequest, error)

	// Delete elimina el request. No falla si no existe.
	Delete(ctx context.Context, tenantID, id string) error
}
