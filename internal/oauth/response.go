package oauth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// Response es un AuthorizationResponse (o AuthorizationErrorResponse) listo para
// entregarse al user agent.
type Response struct {
	RedirectURI string
	// Mode es el transporte resuelto: query, fragment o form_post.
	Mode   types.ResponseMode
	Params url.Values
}

// IsFormPost indica que la respuesta se entrega con un formulario auto-submit.
func (r Response) IsFormPost() bool { return r.Mode == types.ResponseModeFormPost }

// Location devuelve la URL de redirect con los parámetros en la query o el
// fragment. Para form_post devuelve la redirect_uri sin parámetros.
func (r Response) Location() string {
	switch r.Mode {
	case types.ResponseModeFormPost:
		return r.RedirectURI
	case types.ResponseModeFragment:
		base, _, _ := strings.Cut(r.RedirectURI, "#")
		return base + "#" + r.Params.Encode()
	}
	u, err := url.Parse(r.RedirectURI)
	if err != nil {
		return r.RedirectURI
	}
	q := u.Query()
	for k, vs := range r.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Responder arma respuestas de autorización, firmándolas cuando el modo es JWT.
type Responder struct {
	issuer *jwtx.Issuer
}

func NewResponder(issuer *jwtx.Issuer) *Responder {
	return &Responder{issuer: issuer}
}

// Success agrega state y entrega params según el response_mode del target.
func (r *Responder) Success(t oautherr.RedirectTarget, params url.Values) (Response, error) {
	if t.State != "" {
		params.Set("state", t.State)
	}
	return r.deliver(t, params)
}

// Error construye el AuthorizationErrorResponse de un error redirigible.
func (r *Responder) Error(oe *oautherr.Error) (Response, error) {
	if !oe.IsRedirectable() {
		return Response{}, fmt.Errorf("oauth: error %q is not redirectable", oe.Code)
	}
	params := url.Values{"error": {oe.Code}}
	if oe.Description != "" {
		params.Set("error_description", oe.Description)
	}
	return r.Success(oe.Target, params)
}

func (r *Responder) deliver(t oautherr.RedirectTarget, params url.Values) (Response, error) {
	if t.ResponseMode.IsJWT() {
		claims := make(map[string]string, len(params))
		for k := range params {
			claims[k] = params.Get(k)
		}
		signed, err := r.issuer.IssueJARM(t.Issuer, t.ClientID, claims)
		if err != nil {
			return Response{}, fmt.Errorf("oauth: jarm: %w", err)
		}
		params = url.Values{"response": {signed}}
	}
	return Response{
		RedirectURI: t.RedirectURI,
		Mode:        t.ResponseMode.Resolve(t.ResponseType),
		Params:      params,
	}, nil
}
