package http

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/oauth"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
)

// authorizationView es lo que la UI necesita para continuar la interacción.
type authorizationView struct {
	ID             string              `json:"id"`
	Status         oauth.RequestStatus `json:"status"`
	ClientID       string              `json:"client_id"`
	Scopes         types.Scopes        `json:"scopes"`
	SessionEnabled bool                `json:"session_enabled"`
}

type authorizeBody struct {
	User             repository.User           `json:"user"`
	Authentication   repository.Authentication `json:"authentication"`
	CustomProperties map[string]any            `json:"custom_properties,omitempty"`
	DeniedScopes     types.Scopes              `json:"denied_scopes,omitempty"`
}

type denyBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// redirectView entrega la respuesta de autorización a la UI, que es quien
// redirige al user agent.
type redirectView struct {
	RedirectURI  string              `json:"redirect_uri"`
	ResponseMode types.ResponseMode  `json:"response_mode,omitempty"`
	Parameters   map[string][]string `json:"parameters,omitempty"`
}

func viewOf(resp oauth.Response) redirectView {
	v := redirectView{RedirectURI: resp.Location()}
	if resp.IsFormPost() {
		v.ResponseMode = resp.Mode
		v.Parameters = resp.Params
	}
	return v
}

// GET|POST /{tenant}/v1/authorizations
func (c *controller) authorizationRequest(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	var values url.Values
	if r.Method == http.MethodPost {
		if !readForm(w, r) {
			return
		}
		values = r.PostForm
	} else {
		values = r.URL.Query()
	}

	res, err := c.d.OAuthRequest.Handle(r.Context(), tenant, values)
	if err != nil {
		c.writeAuthorizationError(w, r, err)
		return
	}
	if !res.IsNoInteraction() {
		WriteJSON(w, http.StatusOK, authorizationView{
			ID:             res.Request.ID,
			Status:         res.Status,
			ClientID:       res.Client.ClientID,
			Scopes:         res.Request.Scopes,
			SessionEnabled: res.SessionEnabled(),
		})
		return
	}

	resp, err := c.d.OAuthAuthorize.Handle(r.Context(), oauth.AuthorizeRequest{
		TenantID:               tenant,
		AuthorizationRequestID: res.Request.ID,
		User:                   res.Session.User,
		Authentication:         res.Session.Authentication,
	})
	if err != nil {
		c.writeAuthorizationError(w, r, err)
		return
	}
	writeAuthorizationResponse(w, r, resp)
}

// POST /{tenant}/v1/authorizations/{id}/authorize
func (c *controller) authorizationAuthorize(w http.ResponseWriter, r *http.Request) {
	var body authorizeBody
	if !ReadJSON(w, r, &body) {
		return
	}
	resp, err := c.d.OAuthAuthorize.Handle(r.Context(), oauth.AuthorizeRequest{
		TenantID:               chi.URLParam(r, "tenant"),
		AuthorizationRequestID: chi.URLParam(r, "id"),
		User:                   body.User,
		Authentication:         body.Authentication,
		CustomProperties:       body.CustomProperties,
		DeniedScopes:           body.DeniedScopes,
	})
	if err != nil {
		c.writeDecisionError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(resp))
}

// POST /{tenant}/v1/authorizations/{id}/deny
func (c *controller) authorizationDeny(w http.ResponseWriter, r *http.Request) {
	var body denyBody
	if !ReadJSON(w, r, &body) {
		return
	}
	resp, err := c.d.OAuthDeny.Handle(r.Context(), oauth.DenyRequest{
		TenantID:               chi.URLParam(r, "tenant"),
		AuthorizationRequestID: chi.URLParam(r, "id"),
		Error:                  body.Error,
		ErrorDescription:       body.ErrorDescription,
	})
	if err != nil {
		c.writeDecisionError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(resp))
}

// writeAuthorizationError redirige los errores entregables al client; el resto
// va como body porque la redirect_uri no es confiable.
func (c *controller) writeAuthorizationError(w http.ResponseWriter, r *http.Request, err error) {
	oe := oautherr.From(err)
	if !oe.IsRedirectable() {
		writeOAuthError(w, r, err)
		return
	}
	resp, rerr := c.d.Responder.Error(oe)
	if rerr != nil {
		writeOAuthError(w, r, rerr)
		return
	}
	writeAuthorizationResponse(w, r, resp)
}

// writeDecisionError es la variante JSON para las llamadas de la UI.
func (c *controller) writeDecisionError(w http.ResponseWriter, r *http.Request, err error) {
	oe := oautherr.From(err)
	if !oe.IsRedirectable() {
		writeOAuthError(w, r, err)
		return
	}
	resp, rerr := c.d.Responder.Error(oe)
	if rerr != nil {
		writeOAuthError(w, r, rerr)
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(resp))
}
