package repository

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// GrantedClaims son los nombres de claims otorgados por destino.
type GrantedClaims struct {
	IDToken  []string `json:"id_token,omitempty"`
	UserInfo []string `json:"userinfo,omitempty"`
}

// Union devuelve la unión de ambos conjuntos (nunca pierde claims de c).
func (c GrantedClaims) Union(other GrantedClaims) GrantedClaims {
	return GrantedClaims{
		IDToken:  unionStrings(c.IDToken, other.IDToken),
		UserInfo: unionStrings(c.UserInfo, other.UserInfo),
	}
}

// Covers indica si c contiene todos los claims de requested.
func (c GrantedClaims) Covers(requested GrantedClaims) bool {
	return types.Scopes(c.IDToken).Covers(requested.IDToken) &&
		types.Scopes(c.UserInfo).Covers(requested.UserInfo)
}

// ConsentClaim registra un documento aceptado (tos, privacy policy).
type ConsentClaim struct {
	Name        string    `json:"name"`
	Value       string    `json:"value"`
	ConsentedAt time.Time `json:"consented_at"`
}

// ConsentClaims agrupa consentimientos por categoría ("terms", "privacy").
type ConsentClaims map[string][]ConsentClaim

// Union devuelve la unión por (name, value), conservando el primer consentimiento.
func (c ConsentClaims) Union(other ConsentClaims) ConsentClaims {
	out := ConsentClaims{}
	for k, v := range c {
		out[k] = append([]ConsentClaim(nil), v...)
	}
	for k, v := range other {
		for _, claim := range v {
			if !hasConsent(out[k], claim) {
				out[k] = append(out[k], claim)
			}
		}
	}
	return out
}

// Covers indica si todos los consentimientos requeridos ya fueron dados.
func (c ConsentClaims) Covers(required ConsentClaims) bool {
	for k, v := range required {
		for _, claim := range v {
			if !hasConsent(c[k], claim) {
				return false
			}
		}
	}
	return true
}

func hasConsent(list []ConsentClaim, claim ConsentClaim) bool {
	for _, x := range list {
		if x.Name == claim.Name && x.Value == claim.Value {
			return true
		}
	}
	return false
}

// AuthorizationDetail es un objeto de Rich Authorization Requests (RFC 9396).
type AuthorizationDetail map[string]any

// Type devuelve el campo obligatorio "type".
func (d AuthorizationDetail) Type() string {
	s, _ := d["type"].(string)
	return s
}

// AuthorizationDetails es la lista authorization_details.
type AuthorizationDetails []AuthorizationDetail

// ParseAuthorizationDetails parsea el JSON del parámetro. Vacío es válido.
func ParseAuthorizationDetails(raw string) (AuthorizationDetails, error) {
	if raw == "" {
		return nil, nil
	}
	var out AuthorizationDetails
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	for _, d := range out {
		if d.Type() == "" {
			return nil, ErrInvalidInput
		}
	}
	return out, nil
}

// Exists indica si hay al menos un detalle.
func (d AuthorizationDetails) Exists() bool { return len(d) > 0 }

// Union agrega los detalles nuevos no presentes (igualdad por JSON canónico).
func (d AuthorizationDetails) Union(other AuthorizationDetails) AuthorizationDetails {
	seen := map[string]struct{}{}
	out := AuthorizationDetails{}
	for _, list := range []AuthorizationDetails{d, other} {
		for _, detail := range list {
			// encoding/json ordena las claves de los maps: la serialización es canónica.
			b, _ := json.Marshal(detail)
			if _, ok := seen[string(b)]; ok {
				continue
			}
			seen[string(b)] = struct{}{}
			out = append(out, detail)
		}
	}
	return out
}

// AuthorizationGrant son los derechos efectivamente otorgados.
// Se embebe en code grants, CibaGrants, tokens y el ledger AuthorizationGranted.
type AuthorizationGrant struct {
	TenantID             string               `json:"tenant_id"`
	User                 User                 `json:"user"`
	Authentication       Authentication       `json:"authentication"`
	ClientID             string               `json:"client_id"`
	GrantType            types.GrantType      `json:"grant_type"`
	Scopes               types.Scopes         `json:"scopes"`
	Claims               GrantedClaims        `json:"claims"`
	CustomProperties     map[string]any       `json:"custom_properties,omitempty"`
	AuthorizationDetails AuthorizationDetails `json:"authorization_details,omitempty"`
	ConsentClaims        ConsentClaims        `json:"consent_claims,omitempty"`
}

// HasUser indica si el grant tiene un usuario (no es client_credentials).
func (g AuthorizationGrant) HasUser() bool { return g.User.Exists() }

// IsGrantedTo indica si el grant pertenece al client.
func (g AuthorizationGrant) IsGrantedTo(clientID string) bool {
	return g.ClientID != "" && g.ClientID == clientID
}

// Merge combina un grant nuevo sobre g. Scopes, claims, authorization details y
// consentimientos se unen; usuario y autenticación toman el valor más reciente.
func (g AuthorizationGrant) Merge(newer AuthorizationGrant) AuthorizationGrant {
	out := g
	if newer.User.Exists() {
		out.User = newer.User
	}
	if newer.Authentication.Exists() {
		out.Authentication = newer.Authentication
	}
	if newer.GrantType != "" {
		out.GrantType = newer.GrantType
	}
	out.Scopes = g.Scopes.Union(newer.Scopes)
	out.Claims = g.Claims.Union(newer.Claims)
	out.AuthorizationDetails = g.AuthorizationDetails.Union(newer.AuthorizationDetails)
	out.ConsentClaims = g.ConsentClaims.Union(newer.ConsentClaims)
	if len(g.CustomProperties) > 0 || len(newer.CustomProperties) > 0 {
		props := make(map[string]any, len(g.CustomProperties)+len(newer.CustomProperties))
		for k, v := range g.CustomProperties {
			props[k] = v
		}
		for k, v := range newer.CustomProperties {
			props[k] = v
		}
		out.CustomProperties = props
	}
	return out
}

func unionStrings(a, b []string) []string {
	out := types.Scopes(a).Union(b)
	if len(out) == 0 {
		return nil
	}
	return out
}

// standardScopeClaims mapea scopes OIDC a claims (OIDC Core 5.4).
var standardScopeClaims = map[string][]string{
	"profile": {"name", "family_name", "given_name", "middle_name", "nickname", "preferred_username",
		"profile", "picture", "website", "gender", "birthdate", "zoneinfo", "locale", "updated_at"},
	"email":   {"email", "email_verified"},
	"address": {"address"},
	"phone":   {"phone_number", "phone_number_verified"},
}

// ScopeClaims devuelve los claims implicados por los scopes, filtrados por claims_supported.
func ScopeClaims(scopes types.Scopes, server ServerConfiguration) []string {
	var out []string
	for _, s := range scopes {
		for _, c := range standardScopeClaims[s] {
			if server.SupportsClaim(c) {
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// NewGrantedClaims calcula los claims a otorgar para un request.
// En modo estricto el id_token sólo lleva claims pedidos explícitamente, salvo
// response_type=id_token (no hay userinfo accesible).
func NewGrantedClaims(scopes types.Scopes, rt types.ResponseType, server ServerConfiguration, requested RequestedClaims) GrantedClaims {
	scopeClaims := ScopeClaims(scopes, server)

	var idToken []string
	if !server.IDTokenStrictMode || rt == types.ResponseTypeIDToken {
		idToken = append(idToken, scopeClaims...)
	}
	for _, name := range requested.IDTokenNames() {
		if server.SupportsClaim(name) {
			idToken = append(idToken, name)
		}
	}

	userInfo := append([]string(nil), scopeClaims...)
	for _, name := range requested.UserInfoNames() {
		if server.SupportsClaim(name) {
			userInfo = append(userInfo, name)
		}
	}
	return GrantedClaims{
		IDToken:  unionStrings(nil, idToken),
		UserInfo: unionStrings(nil, userInfo),
	}
}

// RequiredConsentClaims devuelve los documentos del client que requieren consentimiento.
func RequiredConsentClaims(client ClientConfiguration, now time.Time) ConsentClaims {
	out := ConsentClaims{}
	if client.TosURI != "" {
		out["terms"] = []ConsentClaim{{Name: "tos_uri", Value: client.TosURI, ConsentedAt: now}}
	}
	if client.PolicyURI != "" {
		out["privacy"] = []ConsentClaim{{Name: "policy_uri", Value: client.PolicyURI, ConsentedAt: now}}
	}
	return out
}
