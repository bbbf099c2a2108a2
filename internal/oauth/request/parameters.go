// Package request arma AuthorizationRequests a partir de los parámetros crudos
// del authorization endpoint, con o sin request object firmado.
package request

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// Nombres de parámetros del authorization endpoint.
const (
	ParamScope                = "scope"
	ParamResponseType         = "response_type"
	ParamResponseMode         = "response_mode"
	ParamClientID             = "client_id"
	ParamRedirectURI          = "redirect_uri"
	ParamState                = "state"
	ParamNonce                = "nonce"
	ParamDisplay              = "display"
	ParamPrompt               = "prompt"
	ParamMaxAge               = "max_age"
	ParamUILocales            = "ui_locales"
	ParamClaimsLocales        = "claims_locales"
	ParamIDTokenHint          = "id_token_hint"
	ParamLoginHint            = "login_hint"
	ParamACRValues            = "acr_values"
	ParamClaims               = "claims"
	ParamRequest              = "request"
	ParamRequestURI           = "request_uri"
	ParamCodeChallenge        = "code_challenge"
	ParamCodeChallengeMethod  = "code_challenge_method"
	ParamAuthorizationDetails = "authorization_details"
)

var knownParams = map[string]struct{}{
	ParamScope: {}, ParamResponseType: {}, ParamResponseMode: {}, ParamClientID: {},
	ParamRedirectURI: {}, ParamState: {}, ParamNonce: {}, ParamDisplay: {}, ParamPrompt: {},
	ParamMaxAge: {}, ParamUILocales: {}, ParamClaimsLocales: {}, ParamIDTokenHint: {},
	ParamLoginHint: {}, ParamACRValues: {}, ParamClaims: {}, ParamRequest: {},
	ParamRequestURI: {}, ParamCodeChallenge: {}, ParamCodeChallengeMethod: {},
	ParamAuthorizationDetails: {},
}

// Parameters son los parámetros crudos del request (query o form).
type Parameters struct {
	values url.Values
}

// NewParameters copia los valores recibidos.
func NewParameters(v url.Values) Parameters {
	cp := make(url.Values, len(v))
	for k, vals := range v {
		cp[k] = append([]string(nil), vals...)
	}
	return Parameters{values: cp}
}

// Get devuelve el primer valor del parámetro ("" si falta).
func (p Parameters) Get(name string) string { return p.values.Get(name) }

// Has indica si el parámetro vino con un valor no vacío.
func (p Parameters) Has(name string) bool { return p.values.Get(name) != "" }

// Values expone una copia para logging y tests.
func (p Parameters) Values() url.Values { return NewParameters(p.values).values }

// ClientID devuelve el client_id crudo.
func (p Parameters) ClientID() string { return p.Get(ParamClientID) }

// RedirectURI devuelve el redirect_uri crudo.
func (p Parameters) RedirectURI() string { return p.Get(ParamRedirectURI) }

// HasRequestObject indica si vino el parámetro request.
func (p Parameters) HasRequestObject() bool { return p.Has(ParamRequest) }

// CustomParams devuelve los parámetros que no son del protocolo.
func (p Parameters) CustomParams() map[string]string {
	var out map[string]string
	for k := range p.values {
		if _, ok := knownParams[k]; ok {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = p.values.Get(k)
	}
	return out
}

// jwtClaims son claims registrados del request object; no son parámetros.
var jwtClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
}

// customClaims devuelve los claims del request object que no son del
// protocolo ni claims registrados de JWT.
func customClaims(claims map[string]any) map[string]string {
	var out map[string]string
	src := claimSource(claims)
	for k := range claims {
		if _, ok := knownParams[k]; ok {
			continue
		}
		if _, ok := jwtClaims[k]; ok {
			continue
		}
		v, ok := src.lookup(k)
		if !ok {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}

// Validate hace la validación sintáctica previa a cargar configuración.
// RFC 6749 §3.1: los parámetros no pueden repetirse.
func (p Parameters) Validate() error {
	if p.ClientID() == "" && !p.HasRequestObject() {
		return oautherr.BadRequest(oautherr.CodeInvalidRequest, "client_id is required")
	}
	for k, vals := range p.values {
		if _, ok := knownParams[k]; ok && len(vals) > 1 {
			return oautherr.BadRequest(oautherr.CodeInvalidRequest, "duplicated parameter: "+k)
		}
	}
	if p.Has(ParamRequestURI) {
		return oautherr.BadRequest(oautherr.CodeRequestURINotSupported, "request_uri is not supported")
	}
	return nil
}

// parseMaxAge devuelve (nil, true) si no vino, y ok=false si no es un entero >= 0.
func parseMaxAge(raw string) (*int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil, false
	}
	return &v, true
}
