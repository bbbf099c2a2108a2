package oauth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oauth/verifier"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// RequestStatus indica al llamador si hace falta interacción con el usuario.
type RequestStatus string

const (
	StatusOK                RequestStatus = "OK"
	StatusOKSessionEnable   RequestStatus = "OK_SESSION_ENABLE"
	StatusOKAccountCreation RequestStatus = "OK_ACCOUNT_CREATION"
	StatusNoInteractionOK   RequestStatus = "NO_INTERACTION_OK"
)

// RequestResult es el request registrado más la sesión y el consentimiento
// previos, si existen.
type RequestResult struct {
	Status  RequestStatus
	Request repository.AuthorizationRequest
	Server  repository.ServerConfiguration
	Client  repository.ClientConfiguration
	Session repository.OAuthSession
	Granted repository.AuthorizationGranted
}

// IsNoInteraction indica que el request puede autorizarse con la sesión actual.
func (r RequestResult) IsNoInteraction() bool { return r.Status == StatusNoInteractionOK }

// SessionEnabled indica que hay una sesión válida para el request.
func (r RequestResult) SessionEnabled() bool { return r.Session.Exists() }

// IsConsented indica si el ledger ya cubre todo lo que pide el request:
// scopes, claims, documentos del client y authorization_details.
func (r RequestResult) IsConsented(now time.Time) bool {
	if !r.Granted.Exists() {
		return false
	}
	req := r.Request
	claims := repository.NewGrantedClaims(req.Scopes, req.ResponseType, r.Server, req.RequestedClaims)
	if !r.Granted.IsGrantedScopes(req.Scopes) || !r.Granted.IsGrantedClaims(claims) {
		return false
	}
	if !r.Granted.IsConsentedClaims(repository.RequiredConsentClaims(r.Client, now)) {
		return false
	}
	details := r.Granted.Grant.AuthorizationDetails
	return len(details.Union(req.AuthorizationDetails)) == len(details)
}

// RequestHandler registra un intento de autorización.
type RequestHandler interface {
	Handle(ctx context.Context, tenantID string, values url.Values) (RequestResult, error)
}

type requestHandler struct {
	d Deps
}

// NewRequestHandler crea el handler.
func NewRequestHandler(d Deps) RequestHandler {
	return &requestHandler{d: d}
}

// Handle valida, construye, verifica y registra el request, y adjunta la sesión
// y el consentimiento existentes. Los errores con redirect_uri resoluble son
// redirigibles.
func (h *requestHandler) Handle(ctx context.Context, tenantID string, values url.Values) (out RequestResult, err error) {
	ctx, span := tracing.Start(ctx, "oauth.RequestHandler.Handle", tracing.Tenant(tenantID))
	log := logger.From(ctx).With(logger.Layer("oauth"), logger.Op("RequestHandler.Handle"), logger.TenantID(tenantID))
	defer func() { tracing.End(span, err) }()

	p := request.NewParameters(values)
	clientID := request.ResolveClientID(p)

	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		if err := p.Validate(); err != nil {
			return oautherr.Redirectify(err, h.paramTarget(ctx, tenantID, clientID, p))
		}
		server, err := h.d.Config.Server(ctx, tenantID)
		if err != nil {
			return err
		}
		client, err := h.d.Config.Client(ctx, tenantID, clientID)
		if err != nil {
			return err
		}

		now := h.d.now()
		c, err := request.Build(tenantID, p, server, client, now)
		if err != nil {
			return oautherr.Redirectify(err, request.ParamTarget(tenantID, p, server, client))
		}
		if err := verifier.Verify(c); err != nil {
			return err
		}
		if err := h.d.DAL.AuthorizationRequests().Register(ctx, tenantID, c.Request); err != nil {
			return fmt.Errorf("oauth: register authorization request: %w", err)
		}

		out = RequestResult{Request: c.Request, Server: server, Client: client}
		return h.attachSession(ctx, c, &out, now)
	})

	profile := string(out.Request.Profile)
	if profile == "" {
		profile = string(types.ProfileUndefined)
	}
	if err != nil {
		metrics.AuthorizationRequests.WithLabelValues(profile, oautherr.From(err).Code).Inc()
		logFailure(log.With(logger.ClientID(clientID)), err, "authorization request rejected")
		return RequestResult{}, err
	}

	metrics.AuthorizationRequests.WithLabelValues(profile, string(out.Status)).Inc()
	log.Info("authorization request registered",
		logger.ClientID(out.Client.ClientID),
		logger.AuthorizationRequestID(out.Request.ID),
		logger.Profile(profile),
		logger.String("status", string(out.Status)))
	return out, nil
}

// attachSession resuelve el estado según la sesión y el ledger. prompt=none
// sin sesión válida o sin consentimiento previo falla con un error redirigible.
func (h *requestHandler) attachSession(ctx context.Context, c *request.Context, out *RequestResult, now time.Time) error {
	req := c.Request
	sess, err := h.d.Sessions.Find(ctx, repository.SessionKey(req.TenantID, c.Client.ClientID))
	if err != nil {
		return fmt.Errorf("oauth: find session: %w", err)
	}
	live := sess.IsValidFor(req, now)
	if live {
		granted, err := h.d.Ledger.Find(ctx, req.TenantID, c.Client.ClientID, sess.User.Sub)
		if err != nil {
			return fmt.Errorf("oauth: find granted: %w", err)
		}
		out.Session = sess
		out.Granted = granted
	}

	switch {
	case req.IsPromptNone():
		if !live {
			return oautherr.Redirectable(oautherr.CodeLoginRequired, "prompt=none requires an authenticated session", c.Target())
		}
		if !out.IsConsented(now) {
			return oautherr.Redirectable(oautherr.CodeInteractionRequired, "prompt=none requires previously granted consent", c.Target())
		}
		out.Status = StatusNoInteractionOK
	case req.IsPromptCreate():
		out.Status = StatusOKAccountCreation
	case live:
		out.Status = StatusOKSessionEnable
	default:
		out.Status = StatusOK
	}
	return nil
}

// paramTarget carga la configuración sólo para resolver el destino de un error
// sintáctico. Si no se puede cargar, el error no es redirigible.
func (h *requestHandler) paramTarget(ctx context.Context, tenantID, clientID string, p request.Parameters) oautherr.RedirectTarget {
	if clientID == "" {
		return oautherr.RedirectTarget{}
	}
	server, err := h.d.Config.Server(ctx, tenantID)
	if err != nil {
		return oautherr.RedirectTarget{}
	}
	client, err := h.d.Config.Client(ctx, tenantID, clientID)
	if err != nil {
		return oautherr.RedirectTarget{}
	}
	return request.ParamTarget(tenantID, p, server, client)
}
