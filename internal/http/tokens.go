package http

import (
	"crypto/x509"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/idpserver/internal/ciba"
	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// clientCertificate resuelve el certificado mTLS. Un header presente pero
// ilegible es un error del request.
func clientCertificate(w http.ResponseWriter, r *http.Request) (*x509.Certificate, bool) {
	c, err := clientauth.CertificateFromRequest(r)
	if err != nil {
		logger.From(r.Context()).Debug("invalid client certificate header", logger.Err(err))
		WriteError(w, http.StatusBadRequest, oautherr.CodeInvalidRequest, "invalid client certificate")
		return nil, false
	}
	return c, true
}

// POST /{tenant}/v1/tokens
func (c *controller) token(w http.ResponseWriter, r *http.Request) {
	if !readForm(w, r) {
		return
	}
	cert, ok := clientCertificate(w, r)
	if !ok {
		return
	}
	resp, err := c.d.Token.Handle(r.Context(), token.Request{
		TenantID:      chi.URLParam(r, "tenant"),
		Form:          r.PostForm,
		Authorization: r.Header.Get("Authorization"),
		Certificate:   cert,
		Endpoint:      c.endpointURL(r),
	})
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// POST /{tenant}/v1/backchannel/authentications
func (c *controller) backchannelRequest(w http.ResponseWriter, r *http.Request) {
	if !readForm(w, r) {
		return
	}
	cert, ok := clientCertificate(w, r)
	if !ok {
		return
	}
	resp, err := c.d.Backchannel.Handle(r.Context(), ciba.Request{
		TenantID:      chi.URLParam(r, "tenant"),
		Form:          r.PostForm,
		Authorization: r.Header.Get("Authorization"),
		Certificate:   cert,
		Endpoint:      c.endpointURL(r),
	})
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

type decisionBody struct {
	User           repository.User           `json:"user"`
	Authentication repository.Authentication `json:"authentication"`
}

func (c *controller) decision(w http.ResponseWriter, r *http.Request) (ciba.Decision, bool) {
	var body decisionBody
	if !ReadJSON(w, r, &body) {
		return ciba.Decision{}, false
	}
	return ciba.Decision{
		TenantID:       chi.URLParam(r, "tenant"),
		AuthReqID:      chi.URLParam(r, "auth_req_id"),
		User:           body.User,
		Authentication: body.Authentication,
	}, true
}

// POST /{tenant}/v1/backchannel/authentications/{auth_req_id}/authorize
func (c *controller) backchannelAuthorize(w http.ResponseWriter, r *http.Request) {
	in, ok := c.decision(w, r)
	if !ok {
		return
	}
	resp, err := c.d.BackchannelAuthorize.Handle(r.Context(), in)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// POST /{tenant}/v1/backchannel/authentications/{auth_req_id}/deny
func (c *controller) backchannelDeny(w http.ResponseWriter, r *http.Request) {
	in, ok := c.decision(w, r)
	if !ok {
		return
	}
	resp, err := c.d.BackchannelDeny.Handle(r.Context(), in)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
