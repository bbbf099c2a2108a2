// Package token implementa el token endpoint: autenticación del client,
// verificación del grant por grant_type y emisión de tokens.
//
// Los verifiers son puros: no escriben nada hasta que todos los chequeos
// pasan. Cada request ejecuta un único unit of work.
package token

import (
	"context"
	"crypto/x509"
	"net/url"
	"time"

	"github.com/dropDatabas3/idpserver/internal/audit"
	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/grant"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	"github.com/dropDatabas3/idpserver/internal/rate"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// Request es un token request ya leído del transporte.
type Request struct {
	TenantID      string
	Form          url.Values
	Authorization string
	Certificate   *x509.Certificate
	// Endpoint es la URL del token endpoint; se acepta como aud de client assertions.
	Endpoint string
}

// Response es el cuerpo JSON de una respuesta exitosa.
type Response struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func responseFrom(t repository.OAuthToken) Response {
	return Response{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		ExpiresIn:    ExpiresIn(t),
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
		Scope:        t.Grant.Scopes.String(),
	}
}

// Deps son las dependencias del token endpoint.
type Deps struct {
	DAL           store.DataAccessLayer
	Config        *configuration.Service
	Authenticator *clientauth.Authenticator
	Minter        *Minter
	Ledger        *grant.Ledger
	// Limiter respalda slow_down en el polling CIBA; nil lo desactiva.
	Limiter rate.MultiLimiter
	Now     func() time.Time // Default: time.Now
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// Handler atiende el token endpoint.
type Handler interface {
	Handle(ctx context.Context, in Request) (Response, error)
}

type handler struct {
	d Deps
}

// NewHandler crea el handler.
func NewHandler(d Deps) Handler {
	return &handler{d: d}
}

// tokenContext es todo lo que necesita un service una vez autenticado el client.
type tokenContext struct {
	tenantID  string
	form      url.Values
	grantType types.GrantType
	server    repository.ServerConfiguration
	client    repository.ClientConfiguration
	auth      clientauth.Result
	now       time.Time
}

func (h *handler) Handle(ctx context.Context, in Request) (resp Response, err error) {
	start := time.Now()
	rawGrantType := in.Form.Get("grant_type")
	ctx, span := tracing.Start(ctx, "token.Handler.Handle", tracing.Tenant(in.TenantID), tracing.GrantType(rawGrantType))
	log := logger.From(ctx).With(logger.Layer("token"), logger.Op("Handler.Handle"),
		logger.TenantID(in.TenantID), logger.GrantType(rawGrantType))
	defer func() {
		code := ""
		if err != nil {
			code = oautherr.From(err).Code
		}
		metrics.ObserveToken(rawGrantType, metrics.Result(code), start)
		tracing.End(span, err)
	}()

	var clientID string
	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		server, err := h.d.Config.Server(ctx, in.TenantID)
		if err != nil {
			return err
		}
		gt, ok := types.ParseGrantType(rawGrantType)
		if !ok || gt == types.GrantTypeImplicit || !server.SupportsGrantType(gt) {
			return oautherr.TokenBadRequest(oautherr.CodeUnsupportedGrantType, "grant_type is not supported")
		}
		svc, err := serviceFor(gt)
		if err != nil {
			return oautherr.ServerError(err)
		}

		creds, err := clientauth.Extract(in.Authorization, in.Form, in.Certificate)
		if err != nil {
			return err
		}
		clientID = creds.ClientID
		client, err := h.d.Config.Client(ctx, in.TenantID, creds.ClientID)
		if repository.IsConfigurationNotFound(err) {
			return oautherr.Unauthorized("unknown client").WithCause(err)
		}
		if err != nil {
			return err
		}
		auth, err := h.d.Authenticator.Authenticate(creds, client, []string{server.Issuer, in.Endpoint})
		if err != nil {
			return err
		}
		if !client.SupportsGrantType(gt) {
			return oautherr.TokenBadRequest(oautherr.CodeUnauthorizedClient, "client is not allowed to use grant_type "+string(gt))
		}

		resp, err = svc.create(ctx, h.d, tokenContext{
			tenantID:  in.TenantID,
			form:      in.Form,
			grantType: gt,
			server:    server,
			client:    client,
			auth:      auth,
			now:       h.d.now(),
		})
		return err
	})
	if err != nil {
		oe := oautherr.From(err)
		if oe.Kind == oautherr.KindServerError {
			log.Error("token request failed", logger.ClientID(clientID), logger.Err(err))
		} else {
			log.Debug("token request rejected", logger.ClientID(clientID), logger.ErrorCode(oe.Code), logger.String("description", oe.Description))
		}
		return Response{}, err
	}
	audit.Log(ctx, audit.EventTokenIssued, logger.TenantID(in.TenantID), logger.ClientID(clientID), logger.GrantType(rawGrantType))
	log.Info("token issued", logger.ClientID(clientID), logger.String("scope", resp.Scope))
	return resp, nil
}

func invalidGrant(desc string) error {
	return oautherr.TokenBadRequest(oautherr.CodeInvalidGrant, desc)
}

func invalidRequest(desc string) error {
	return oautherr.TokenBadRequest(oautherr.CodeInvalidRequest, desc)
}

func invalidScope(desc string) error {
	return oautherr.TokenBadRequest(oautherr.CodeInvalidScope, desc)
}
