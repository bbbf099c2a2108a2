package ciba

import (
	"context"
	"crypto/x509"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/email"
	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	"github.com/dropDatabas3/idpserver/internal/oauth/request"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/util"
)

// Request es un backchannel authentication request ya leído del transporte.
type Request struct {
	TenantID      string
	Form          url.Values
	Authorization string
	Certificate   *x509.Certificate
	// Endpoint es la URL del backchannel endpoint; se acepta como aud de client assertions.
	Endpoint string
}

// Response es el cuerpo de un request aceptado (CIBA §7.3).
type Response struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int64  `json:"interval"`
}

// RequestHandler atiende el backchannel authentication endpoint.
type RequestHandler interface {
	Handle(ctx context.Context, in Request) (Response, error)
}

type requestHandler struct {
	d Deps
}

// NewRequestHandler crea el handler.
func NewRequestHandler(d Deps) RequestHandler {
	return &requestHandler{d: d}
}

// accepted es lo que sobrevive al commit para avisar al usuario.
type accepted struct {
	user   repository.User
	client repository.ClientConfiguration
	req    repository.BackchannelAuthenticationRequest
}

func (h *requestHandler) Handle(ctx context.Context, in Request) (resp Response, err error) {
	ctx, span := tracing.Start(ctx, "ciba.RequestHandler.Handle", tracing.Tenant(in.TenantID))
	log := logger.From(ctx).With(logger.Layer("ciba"), logger.Op("RequestHandler.Handle"), logger.TenantID(in.TenantID))
	defer func() { tracing.End(span, err) }()

	now := h.d.now()
	var acc accepted
	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		server, err := h.d.Config.Server(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if !server.SupportsGrantType(types.GrantTypeCIBA) {
			return badRequest(oautherr.CodeUnauthorizedClient, "backchannel authentication is not enabled")
		}

		creds, err := clientauth.Extract(in.Authorization, in.Form, in.Certificate)
		if err != nil {
			return backchannelClientError(err)
		}
		client, err := h.d.Config.Client(ctx, in.TenantID, creds.ClientID)
		if repository.IsConfigurationNotFound(err) {
			return oautherr.Backchannel(oautherr.KindBackchannelUnauthorized, oautherr.CodeInvalidClient, "unknown client").WithCause(err)
		}
		if err != nil {
			return err
		}
		auth, err := h.d.Authenticator.Authenticate(creds, client, []string{server.Issuer, in.Endpoint})
		if err != nil {
			return backchannelClientError(err)
		}
		if !client.SupportsGrantType(types.GrantTypeCIBA) {
			return badRequest(oautherr.CodeUnauthorizedClient, "client is not allowed to use backchannel authentication")
		}

		var ro *jose.SignedJWT
		if raw := in.Form.Get(ParamRequest); raw != "" {
			if ro, err = verifyRequestObject(raw, server, client, now); err != nil {
				return err
			}
		}
		scopes, profile := scopesAndProfile(in.Form, ro, server, client)
		pattern := SelectPattern(ro != nil, profile)
		factory, err := FactoryFor(pattern)
		if err != nil {
			return oautherr.ServerError(err)
		}
		req, err := factory.Create(Input{
			TenantID:      in.TenantID,
			Profile:       profile,
			Scopes:        scopes,
			Form:          in.Form,
			RequestObject: ro,
			Client:        client,
			MaxExpiry:     server.BackchannelExpiresIn(),
			Now:           now,
		})
		if err != nil {
			return err
		}

		c := &Context{Pattern: pattern, Request: req, Server: server, Client: client, RequestObject: ro, Auth: auth, Now: now}
		if err := Verify(c); err != nil {
			return err
		}
		user, err := hintResolver{users: h.d.DAL.Users(), issuer: h.d.Issuer}.resolve(ctx, c)
		if err != nil {
			return err
		}

		if err := h.d.DAL.BackchannelRequests().Register(ctx, in.TenantID, req); err != nil {
			return fmt.Errorf("ciba: register backchannel request: %w", err)
		}
		g, err := newPendingGrant(req, user, server, client, now)
		if err != nil {
			return err
		}
		if err := h.d.DAL.CibaGrants().Register(ctx, in.TenantID, g); err != nil {
			return fmt.Errorf("ciba: register grant: %w", err)
		}

		acc = accepted{user: user, client: client, req: req}
		resp = Response{AuthReqID: g.AuthReqID, ExpiresIn: g.ExpiresIn(now), Interval: g.Interval}
		return nil
	})
	if err != nil {
		logFailure(log, err, "backchannel request rejected")
		return Response{}, err
	}
	metrics.CibaTransitions.WithLabelValues(string(types.CibaStatusPending)).Inc()

	h.notifyUser(ctx, acc)
	log.Info("backchannel request accepted",
		logger.ClientID(acc.client.ClientID),
		logger.UserID(acc.user.Sub),
		logger.AuthReqID(resp.AuthReqID),
		logger.Profile(string(acc.req.Profile)))
	return resp, nil
}

// scopesAndProfile filtra los scopes por los del client y deriva el perfil.
// Con un request object los scopes salen de él; en FAPI no hay fallback al form.
func scopesAndProfile(form url.Values, ro *jose.SignedJWT, server repository.ServerConfiguration, client repository.ClientConfiguration) (types.Scopes, types.Profile) {
	raw, fromRO := form.Get(ParamScope), false
	if ro != nil {
		if s, ok := request.ClaimString(ro.Claims, ParamScope); ok {
			raw, fromRO = s, true
		}
	}
	scopes := client.FilterScopes(types.ParseScopes(raw))
	profile := types.IdentifyProfile(scopes, server.FapiBaselineScopes, server.FapiAdvanceScopes)
	if profile.IsFAPI() && ro != nil && !fromRO {
		scopes = nil
	}
	return scopes, profile
}

func newPendingGrant(req repository.BackchannelAuthenticationRequest, user repository.User, server repository.ServerConfiguration, client repository.ClientConfiguration, now time.Time) (repository.CibaGrant, error) {
	id, err := tokens.NewIdentifier()
	if err != nil {
		return repository.CibaGrant{}, fmt.Errorf("ciba: auth_req_id: %w", err)
	}
	// En segundos hasta el final: requested_expiry nunca supera el tope del server.
	secs := server.BackchannelExpiresIn()
	if req.RequestedExpiry != nil && *req.RequestedExpiry > 0 && *req.RequestedExpiry < secs {
		secs = *req.RequestedExpiry
	}
	ttl := time.Duration(secs) * time.Second
	return repository.CibaGrant{
		AuthReqID:                          id,
		TenantID:                           req.TenantID,
		BackchannelAuthenticationRequestID: req.ID,
		Grant: repository.AuthorizationGrant{
			TenantID:             req.TenantID,
			User:                 user,
			ClientID:             req.ClientID,
			GrantType:            types.GrantTypeCIBA,
			Scopes:               req.Scopes,
			Claims:               repository.NewGrantedClaims(req.Scopes, "", server, repository.RequestedClaims{}),
			AuthorizationDetails: req.AuthorizationDetails,
			ConsentClaims:        repository.RequiredConsentClaims(client, now),
		},
		Status:                     types.CibaStatusPending,
		DeliveryMode:               req.DeliveryMode,
		ClientNotificationEndpoint: client.BackchannelClientNotificationEndpoint,
		ClientNotificationToken:    req.ClientNotificationToken,
		Interval:                   server.PollingInterval(),
		ExpiresAt:                  now.Add(ttl),
		CreatedAt:                  now,
	}, nil
}

// notifyUser avisa al usuario por email. Un fallo no afecta al request ya aceptado.
func (h *requestHandler) notifyUser(ctx context.Context, acc accepted) {
	if h.d.Mailer == nil || acc.user.Email == "" {
		return
	}
	log := logger.From(ctx).With(logger.Layer("ciba"), logger.Op("RequestHandler.notifyUser"))
	name := acc.user.Name
	if name == "" {
		name = acc.user.PreferredUsername
	}
	client := acc.client.ClientName
	if client == "" {
		client = acc.client.ClientID
	}
	msg, err := email.BackchannelNotice{
		To:             acc.user.Email,
		UserName:       name,
		ClientName:     client,
		Scopes:         acc.req.Scopes.String(),
		BindingMessage: acc.req.BindingMessage,
	}.Render()
	if err != nil {
		log.Warn("render end-user notice failed", logger.Err(err))
		return
	}
	if err := h.d.Mailer.Send(ctx, msg); err != nil {
		log.Warn("end-user notice failed", logger.UserID(acc.user.Sub), logger.String("to", util.MaskEmail(acc.user.Email)), logger.Err(err))
	}
}
