// Package verifier contiene los chequeos de protocolo del authorization
// endpoint. Son puros: no tocan el store y fallan con el primer chequeo que no
// pasa.
package verifier

import (
	"fmt"
	"net/url"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/security/pkce"
)

// Verifier valida un request ya construido por la factory.
type Verifier interface {
	Verify(c *request.Context) error
}

var verifiers = map[types.Profile]Verifier{
	types.ProfileOAuth2:       oauth2Verifier{},
	types.ProfileOIDC:         oidcVerifier{},
	types.ProfileFAPIBaseline: fapiBaselineVerifier{},
	types.ProfileFAPIAdvance:  fapiAdvanceVerifier{},
}

// For devuelve el verifier del perfil. No hay default: un perfil desconocido
// es un error de programación.
func For(p types.Profile) (Verifier, error) {
	v, ok := verifiers[p]
	if !ok {
		return nil, fmt.Errorf("verifier: unknown profile %q", p)
	}
	return v, nil
}

// Verify ejecuta el verifier del perfil y luego los chequeos de extensiones.
func Verify(c *request.Context) error {
	v, err := For(c.Request.Profile)
	if err != nil {
		return oautherr.ServerError(err)
	}
	if err := v.Verify(c); err != nil {
		return err
	}
	return verifyExtensions(c)
}

func redirectable(c *request.Context, code, desc string) error {
	return oautherr.Redirectable(code, desc, c.Target())
}

func badRequest(desc string) error {
	return oautherr.BadRequest(oautherr.CodeInvalidRequest, desc)
}

// oauth2Verifier son las reglas de RFC 6749 que comparten todos los perfiles.
type oauth2Verifier struct{}

func (oauth2Verifier) Verify(c *request.Context) error {
	if err := verifyRedirectURI(c); err != nil {
		return err
	}
	if err := verifyResponseType(c); err != nil {
		return err
	}
	if !c.Request.Scopes.Exists() {
		return redirectable(c, oautherr.CodeInvalidScope, "authorization request does not contain a valid scope")
	}
	return verifySyntax(c)
}

func verifyRedirectURI(c *request.Context) error {
	if !c.Request.HasRedirectURI() {
		switch len(c.Client.RedirectURIs) {
		case 0:
			return badRequest("client has no registered redirect_uri")
		case 1:
			return nil
		default:
			return badRequest("redirect_uri is required when the client registered several")
		}
	}
	u, err := url.Parse(c.Request.RedirectURI)
	if err != nil || !u.IsAbs() {
		return badRequest("redirect_uri is invalid")
	}
	if u.Fragment != "" {
		return badRequest("redirect_uri must not contain a fragment")
	}
	if !c.Client.IsRegisteredRedirectURI(c.Request.RedirectURI) {
		return badRequest("redirect_uri does not match the registered redirect_uris")
	}
	return nil
}

func verifyResponseType(c *request.Context) error {
	req := c.Request
	if req.Validity.UnknownResponseType {
		return redirectable(c, oautherr.CodeInvalidRequest, "response_type is unknown")
	}
	if req.ResponseType == "" {
		return redirectable(c, oautherr.CodeInvalidRequest, "response_type is required")
	}
	if !c.Server.SupportsResponseType(req.ResponseType) {
		return redirectable(c, oautherr.CodeUnsupportedResponseType, "server does not support response_type "+string(req.ResponseType))
	}
	if !c.Client.SupportsResponseType(req.ResponseType) {
		return redirectable(c, oautherr.CodeUnauthorizedClient, "client is not allowed to use response_type "+string(req.ResponseType))
	}
	if req.ResponseType.HasIDToken() && !req.IsOIDC() {
		return redirectable(c, oautherr.CodeInvalidRequest, "response_type id_token requires the openid scope")
	}
	return nil
}

// verifySyntax rechaza los flags que dejó la factory.
func verifySyntax(c *request.Context) error {
	v := c.Request.Validity
	switch {
	case v.InvalidResponseMode, !c.Server.SupportsResponseMode(c.Request.ResponseMode):
		return redirectable(c, oautherr.CodeInvalidRequest, "response_mode is invalid or unsupported")
	case v.InvalidDisplay:
		return redirectable(c, oautherr.CodeInvalidRequest, "display is invalid")
	case v.InvalidPrompt:
		return redirectable(c, oautherr.CodeInvalidRequest, "prompt is invalid")
	case v.InvalidMaxAge:
		return redirectable(c, oautherr.CodeInvalidRequest, "max_age must be a non-negative integer")
	case v.InvalidClaims:
		return redirectable(c, oautherr.CodeInvalidRequest, "claims is not valid json")
	case v.InvalidAuthorizationDetails:
		return redirectable(c, oautherr.CodeInvalidAuthzDetails, "authorization_details is invalid")
	case v.InvalidCodeChallengeMethod:
		return redirectable(c, oautherr.CodeInvalidRequest, "code_challenge_method is unsupported")
	}
	return nil
}

// oidcVerifier agrega OIDC Core 3.1.2.1 / 3.2.2.1 sobre las reglas OAuth2.
type oidcVerifier struct{}

func (oidcVerifier) Verify(c *request.Context) error {
	if !c.Request.HasRedirectURI() {
		return badRequest("redirect_uri is required for openid requests")
	}
	if err := (oauth2Verifier{}).Verify(c); err != nil {
		return err
	}
	if c.Request.ResponseType.HasIDToken() && c.Request.Nonce == "" {
		return redirectable(c, oautherr.CodeInvalidRequest, "nonce is required when response_type contains id_token")
	}
	return nil
}

// base aplica OIDC u OAuth2 según el scope openid.
func base(c *request.Context) error {
	if c.Request.IsOIDC() {
		return oidcVerifier{}.Verify(c)
	}
	return oauth2Verifier{}.Verify(c)
}

// verifyExtensions corre para todos los perfiles.
func verifyExtensions(c *request.Context) error {
	req := c.Request
	if req.PKCE != nil && !pkce.ValidVerifier(req.PKCE.Challenge) {
		return redirectable(c, oautherr.CodeInvalidRequest, "code_challenge is malformed")
	}
	if c.Client.RequirePKCE && req.PKCE == nil && req.ResponseType.HasCode() {
		return redirectable(c, oautherr.CodeInvalidRequest, "client requires PKCE")
	}
	// Tokens en la query quedan en logs y Referer.
	if req.ResponseType.IsImplicitOrHybrid() && req.ResponseMode.Resolve(req.ResponseType) == types.ResponseModeQuery {
		return redirectable(c, oautherr.CodeInvalidRequest, "query response modes must not be used with implicit or hybrid response types")
	}
	return nil
}
