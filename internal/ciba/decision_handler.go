package ciba

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/idpserver/internal/audit"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// Decision es la respuesta del usuario a un request pendiente.
type Decision struct {
	TenantID       string
	AuthReqID      string
	User           repository.User
	Authentication repository.Authentication
}

// DecisionResponse informa el estado final del grant.
type DecisionResponse struct {
	AuthReqID string           `json:"auth_req_id"`
	Status    types.CibaStatus `json:"status"`
}

// AuthorizeHandler autoriza un grant pendiente y notifica al client.
type AuthorizeHandler interface {
	Handle(ctx context.Context, in Decision) (DecisionResponse, error)
}

// DenyHandler rechaza un grant pendiente.
type DenyHandler interface {
	Handle(ctx context.Context, in Decision) (DecisionResponse, error)
}

type authorizeHandler struct{ d Deps }

type denyHandler struct{ d Deps }

// NewAuthorizeHandler crea el handler.
func NewAuthorizeHandler(d Deps) AuthorizeHandler { return &authorizeHandler{d: d} }

// NewDenyHandler crea el handler.
func NewDenyHandler(d Deps) DenyHandler { return &denyHandler{d: d} }

func (h *authorizeHandler) Handle(ctx context.Context, in Decision) (resp DecisionResponse, err error) {
	ctx, span := tracing.Start(ctx, "ciba.AuthorizeHandler.Handle", tracing.Tenant(in.TenantID))
	log := logger.From(ctx).With(logger.Layer("ciba"), logger.Op("AuthorizeHandler.Handle"),
		logger.TenantID(in.TenantID), logger.AuthReqID(in.AuthReqID))
	defer func() { tracing.End(span, err) }()

	if !in.Authentication.Exists() {
		return DecisionResponse{}, badRequest(oautherr.CodeInvalidRequest, "authentication is required")
	}

	var delivery *Delivery
	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		g, err := loadPending(ctx, h.d, in)
		if err != nil {
			return err
		}
		server, err := h.d.Config.Server(ctx, in.TenantID)
		if err != nil {
			return err
		}
		client, err := h.d.Config.Client(ctx, in.TenantID, g.Grant.ClientID)
		if err != nil {
			return err
		}

		g.Grant.Authentication = in.Authentication
		if err := transition(ctx, h.d, g, types.CibaStatusAuthorized); err != nil {
			return err
		}
		g.Status = types.CibaStatusAuthorized

		delivery, err = h.d.Notifier.PrepareAuthorized(ctx, g, server, client)
		return err
	})
	if err != nil {
		logFailure(log, err, "backchannel authorize failed")
		return DecisionResponse{}, err
	}
	metrics.CibaTransitions.WithLabelValues(string(types.CibaStatusAuthorized)).Inc()
	// El grant ya está comprometido: un fallo de entrega no lo revierte.
	_ = h.d.Notifier.Send(ctx, delivery)

	audit.Log(ctx, audit.EventBackchannelAuthorized, logger.TenantID(in.TenantID), logger.AuthReqID(in.AuthReqID), logger.UserID(in.User.Sub))
	log.Info("backchannel request authorized", logger.UserID(in.User.Sub))
	return DecisionResponse{AuthReqID: in.AuthReqID, Status: types.CibaStatusAuthorized}, nil
}

func (h *denyHandler) Handle(ctx context.Context, in Decision) (resp DecisionResponse, err error) {
	ctx, span := tracing.Start(ctx, "ciba.DenyHandler.Handle", tracing.Tenant(in.TenantID))
	log := logger.From(ctx).With(logger.Layer("ciba"), logger.Op("DenyHandler.Handle"),
		logger.TenantID(in.TenantID), logger.AuthReqID(in.AuthReqID))
	defer func() { tracing.End(span, err) }()

	var delivery *Delivery
	err = h.d.DAL.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		g, err := loadPending(ctx, h.d, in)
		if err != nil {
			return err
		}
		if err := transition(ctx, h.d, g, types.CibaStatusAccessDenied); err != nil {
			return err
		}
		if h.d.NotifyDeny {
			delivery = h.d.Notifier.PrepareDenied(g)
		}
		return nil
	})
	if err != nil {
		logFailure(log, err, "backchannel deny failed")
		return DecisionResponse{}, err
	}
	metrics.CibaTransitions.WithLabelValues(string(types.CibaStatusAccessDenied)).Inc()
	_ = h.d.Notifier.Send(ctx, delivery)

	audit.Log(ctx, audit.EventBackchannelDenied, logger.TenantID(in.TenantID), logger.AuthReqID(in.AuthReqID), logger.UserID(in.User.Sub))
	log.Info("backchannel request denied")
	return DecisionResponse{AuthReqID: in.AuthReqID, Status: types.CibaStatusAccessDenied}, nil
}

// loadPending obtiene un grant pendiente y vigente. Si la decisión trae
// usuario, debe ser el resuelto por el hint.
func loadPending(ctx context.Context, d Deps, in Decision) (repository.CibaGrant, error) {
	if in.AuthReqID == "" {
		return repository.CibaGrant{}, badRequest(oautherr.CodeInvalidRequest, "auth_req_id is required")
	}
	g, err := d.DAL.CibaGrants().Get(ctx, in.TenantID, in.AuthReqID)
	if repository.IsNotFound(err) {
		return repository.CibaGrant{}, badRequest(oautherr.CodeInvalidRequest, "backchannel request not found")
	}
	if err != nil {
		return repository.CibaGrant{}, fmt.Errorf("ciba: get grant: %w", err)
	}
	if g.IsExpired(d.now()) {
		return repository.CibaGrant{}, badRequest(oautherr.CodeExpiredToken, "backchannel request expired")
	}
	if !g.IsPending() {
		return repository.CibaGrant{}, badRequest(oautherr.CodeInvalidRequest, "backchannel request was already decided")
	}
	if in.User.Exists() && in.User.Sub != g.Grant.User.Sub {
		return repository.CibaGrant{}, badRequest(oautherr.CodeInvalidRequest, "user does not match the backchannel request")
	}
	return *g, nil
}

// transition aplica pending -> to. El perdedor de una carrera recibe invalid_request.
func transition(ctx context.Context, d Deps, g repository.CibaGrant, to types.CibaStatus) error {
	err := d.DAL.CibaGrants().Transition(ctx, g.TenantID, g.AuthReqID, types.CibaStatusPending, to, g.Grant)
	switch {
	case repository.IsConflict(err):
		return badRequest(oautherr.CodeInvalidRequest, "backchannel request was already decided").WithCause(err)
	case repository.IsNotFound(err):
		return badRequest(oautherr.CodeInvalidRequest, "backchannel request not found")
	case err != nil:
		return fmt.Errorf("ciba: transition to %s: %w", to, err)
	}
	return nil
}
