package oauth

import (
	"context"

	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// DenyRequest es la decisión negativa sobre un request registrado.
type DenyRequest struct {
	TenantID               string
	AuthorizationRequestID string
	// Error es el código a devolver; vacío o desconocido se reemplaza por access_denied.
	Error            string
	ErrorDescription string
}

// denyCodes son los códigos que la UI puede elegir.
var denyCodes = map[string]struct{}{
	oautherr.CodeAccessDenied:        {},
	oautherr.CodeLoginRequired:       {},
	oautherr.CodeInteractionRequired: {},
	oautherr.CodeConsentRequired:     {},
}

// DenyHandler construye el AuthorizationErrorResponse de una denegación.
type DenyHandler interface {
	Handle(ctx context.Context, in DenyRequest) (Response, error)
}

type denyHandler struct {
	d Deps
}

// NewDenyHandler crea el handler.
func NewDenyHandler(d Deps) DenyHandler {
	return &denyHandler{d: d}
}

// Handle no crea grants ni tokens; sólo arma el redirect con el error y el state.
func (h *denyHandler) Handle(ctx context.Context, in DenyRequest) (resp Response, err error) {
	ctx, span := tracing.Start(ctx, "oauth.DenyHandler.Handle", tracing.Tenant(in.TenantID))
	log := logger.From(ctx).With(logger.Layer("oauth"), logger.Op("DenyHandler.Handle"),
		logger.TenantID(in.TenantID), logger.AuthorizationRequestID(in.AuthorizationRequestID))
	defer func() { tracing.End(span, err) }()

	if in.AuthorizationRequestID == "" {
		return Response{}, oautherr.BadRequest(oautherr.CodeInvalidRequest, "authorization request id is required")
	}
	code := in.Error
	if _, ok := denyCodes[code]; !ok {
		code = oautherr.CodeAccessDenied
	}
	desc := in.ErrorDescription
	if desc == "" {
		desc = "the resource owner denied the request"
	}

	err = h.d.DAL.Do(ctx, store.ReadOnly, func(ctx context.Context) error {
		req, err := loadRequest(ctx, h.d, in.TenantID, in.AuthorizationRequestID, h.d.now())
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
		resp, err = h.d.Responder.Error(oautherr.Redirectable(code, desc, targetFor(req, server, client)))
		return err
	})
	if err != nil {
		logFailure(log, err, "deny failed")
		return Response{}, err
	}
	log.Info("authorization denied", logger.ErrorCode(code))
	return resp, nil
}
