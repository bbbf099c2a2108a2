package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	"github.com/dropDatabas3/idpserver/internal/session"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// AuthorizeRequest es la decisión positiva del usuario sobre un request registrado.
type AuthorizeRequest struct {
	TenantID               string
	AuthorizationRequestID string
	User                   repository.User
	Authentication         repository.Authentication
	CustomProperties       map[string]any
	// DeniedScopes son los scopes que el usuario rechazó en la pantalla de consentimiento.
	DeniedScopes types.Scopes
}

func (r AuthorizeRequest) validate() error {
	switch {
	case r.AuthorizationRequestID == "":
		return oautherr.BadRequest(oautherr.CodeInvalidRequest, "authorization request id is required")
	case !r.User.Exists():
		return oautherr.BadRequest(oautherr.CodeInvalidRequest, "user is required")
	case !r.Authentication.Exists():
		return oautherr.BadRequest(oautherr.CodeInvalidRequest, "authentication is required")
	}
	return nil
}

// AuthorizeHandler emite la respuesta de autorización.
type AuthorizeHandler interface {
	Handle(ctx context.Context, in AuthorizeRequest) (Response, error)
}

type authorizeHandler struct {
	d Deps
}

// NewAuthorizeHandler crea el handler.
func NewAuthorizeHandler(d Deps) AuthorizeHandler {
	return &authorizeHandler{d: d}
}

// Handle crea code y/o tokens según el response_type, fusiona el grant en el
// ledger y refresca la sesión del client.
func (h *authorizeHandler) Handle(ctx context.Context, in AuthorizeRequest) (resp Response, err error) {
	ctx, span := tracing.Start(ctx, "oauth.AuthorizeHandler.Handle", tracing.Tenant(in.TenantID))
	log := logger.From(ctx).With(logger.Layer("oauth"), logger.Op("AuthorizeHandler.Handle"),
		logger.TenantID(in.TenantID), logger.AuthorizationRequestID(in.AuthorizationRequestID))
	defer func() { tracing.End(span, err) }()

	if err := in.validate(); err != nil {
		return Response{}, err
	}

	now := h.d.now()
	var (
		req   repository.AuthorizationRequest
		grant repository.AuthorizationGrant
		ttl   time.Duration
	)
	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		var err error
		req, err = loadRequest(ctx, h.d, in.TenantID, in.AuthorizationRequestID, now)
		if err != nil {
			return err
		}
		server, err := h.d.Config.Server(ctx, in.TenantID)
		if err != nil {
			return err
		}
		client, err := h.d.Config.Client(ctx, in.TenantID, req.ClientID)
		if err != nil {
			return err
		}
		creator, err := creatorFor(req.ResponseType)
		if err != nil {
			return oautherr.ServerError(err)
		}

		grant = newGrant(in, req, server, client, now)
		params, err := creator.create(ctx, h.d, authorizeContext{req: req, server: server, client: client, grant: grant, now: now})
		if err != nil {
			return err
		}
		if _, err := h.d.Ledger.Merge(ctx, grant); err != nil {
			return err
		}
		// Sin code no habrá token request que necesite el request original.
		if !creator.code {
			if err := h.d.DAL.AuthorizationRequests().Delete(ctx, in.TenantID, req.ID); err != nil {
				return fmt.Errorf("oauth: delete authorization request: %w", err)
			}
		}

		ttl = sessionTTL(req, in.Authentication, server, now)
		resp, err = h.d.Responder.Success(targetFor(req, server, client), params)
		return err
	})
	if err != nil {
		logFailure(log, err, "authorize failed")
		return Response{}, err
	}

	sess := session.New(in.TenantID, req.ClientID, in.User, in.Authentication, now, ttl)
	if err := h.d.Sessions.Register(ctx, sess); err != nil {
		log.Warn("session refresh failed", logger.Err(err))
	}

	log.Info("authorization granted",
		logger.ClientID(req.ClientID),
		logger.UserID(in.User.Sub),
		logger.String("scopes", grant.Scopes.String()))
	return resp, nil
}

func newGrant(in AuthorizeRequest, req repository.AuthorizationRequest, server repository.ServerConfiguration, client repository.ClientConfiguration, now time.Time) repository.AuthorizationGrant {
	scopes := req.Scopes.Remove(in.DeniedScopes)
	gt := types.GrantTypeImplicit
	if req.ResponseType.HasCode() {
		gt = types.GrantTypeAuthorizationCode
	}
	return repository.AuthorizationGrant{
		TenantID:             in.TenantID,
		User:                 in.User,
		Authentication:       in.Authentication,
		ClientID:             req.ClientID,
		GrantType:            gt,
		Scopes:               scopes,
		Claims:               repository.NewGrantedClaims(scopes, req.ResponseType, server, req.RequestedClaims),
		CustomProperties:     in.CustomProperties,
		AuthorizationDetails: req.AuthorizationDetails,
		ConsentClaims:        repository.RequiredConsentClaims(client, now),
	}
}

// sessionTTL acota la sesión por max_age: pasado ese punto la sesión ya no
// serviría para el mismo request. Con el deadline vencido devuelve 0 y la
// sesión se descarta.
func sessionTTL(req repository.AuthorizationRequest, authn repository.Authentication, server repository.ServerConfiguration, now time.Time) time.Duration {
	ttl := server.SessionTTL()
	if req.MaxAge == nil || *req.MaxAge <= 0 || *req.MaxAge >= int64(ttl/time.Second) {
		return ttl
	}
	d := authn.Time.Add(time.Duration(*req.MaxAge) * time.Second).Sub(now)
	if d <= 0 {
		return 0
	}
	return min(d, ttl)
}

// loadRequest obtiene un request registrado y vigente.
func loadRequest(ctx context.Context, d Deps, tenantID, id string, now time.Time) (repository.AuthorizationRequest, error) {
	req, err := d.DAL.AuthorizationRequests().Get(ctx, tenantID, id)
	if repository.IsNotFound(err) {
		return repository.AuthorizationRequest{}, oautherr.BadRequest(oautherr.CodeInvalidRequest, "authorization request not found")
	}
	if err != nil {
		return repository.AuthorizationRequest{}, fmt.Errorf("oauth: get authorization request: %w", err)
	}
	if !now.Before(req.ExpiresAt) {
		return repository.AuthorizationRequest{}, oautherr.BadRequest(oautherr.CodeInvalidRequest, "authorization request expired")
	}
	return *req, nil
}

// targetFor arma el destino desde un request ya verificado.
func targetFor(req repository.AuthorizationRequest, server repository.ServerConfiguration, client repository.ClientConfiguration) oautherr.RedirectTarget {
	uri := req.RedirectURI
	if uri == "" && len(client.RedirectURIs) == 1 {
		uri = client.RedirectURIs[0]
	}
	return oautherr.RedirectTarget{
		RedirectURI:  uri,
		ResponseMode: req.ResponseMode,
		ResponseType: req.ResponseType,
		State:        req.State,
		ClientID:     client.ClientID,
		TenantID:     req.TenantID,
		Issuer:       server.Issuer,
	}
}
