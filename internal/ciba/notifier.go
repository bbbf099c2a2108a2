package ciba

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/grant"
	"github.com/dropDatabas3/idpserver/internal/metrics"
	"github.com/dropDatabas3/idpserver/internal/notification"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// Delivery es una notificación preparada dentro del unit of work y enviada
// después del commit.
type Delivery struct {
	Mode     types.DeliveryMode
	Endpoint string
	Bearer   string
	Payload  any
}

// NotificationService arma y envía las notificaciones al client. El envío es
// fire-and-report: un fallo se loguea y no revierte tokens ya emitidos.
type NotificationService struct {
	dal     store.DataAccessLayer
	minter  *token.Minter
	ledger  *grant.Ledger
	gateway notification.Gateway
}

func NewNotificationService(dal store.DataAccessLayer, minter *token.Minter, ledger *grant.Ledger, gateway notification.Gateway) *NotificationService {
	return &NotificationService{dal: dal, minter: minter, ledger: ledger, gateway: gateway}
}

// PrepareAuthorized arma la notificación de un grant recién autorizado. En
// push emite los tokens, fusiona el grant en el ledger y consume el CibaGrant.
// Debe llamarse dentro de un unit of work ReadWrite. Retorna nil si el modo
// no notifica.
func (s *NotificationService) PrepareAuthorized(ctx context.Context, g repository.CibaGrant, server repository.ServerConfiguration, client repository.ClientConfiguration) (*Delivery, error) {
	switch g.DeliveryMode {
	case types.DeliveryModePing:
		return s.delivery(g, notification.PingPayload{AuthReqID: g.AuthReqID}), nil
	case types.DeliveryModePush:
	default:
		return nil, nil
	}

	t, err := s.minter.Mint(ctx, token.MintParams{
		Server:      server,
		Client:      client,
		Grant:       g.Grant,
		WithRefresh: token.IssuesRefreshToken(server, client),
		WithIDToken: true,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Merge(ctx, g.Grant); err != nil {
		return nil, err
	}
	if err := s.dal.CibaGrants().DeleteIfStatus(ctx, g.TenantID, g.AuthReqID, types.CibaStatusAuthorized); err != nil {
		return nil, fmt.Errorf("ciba: delete pushed grant: %w", err)
	}
	if err := s.dal.BackchannelRequests().Delete(ctx, g.TenantID, g.BackchannelAuthenticationRequestID); err != nil {
		return nil, fmt.Errorf("ciba: delete backchannel request: %w", err)
	}
	return s.delivery(g, notification.PushPayload{
		AuthReqID:    g.AuthReqID,
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		ExpiresIn:    token.ExpiresIn(t),
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
	}), nil
}

// PrepareDenied arma la notificación de un rechazo: error en push, ping en
// ping (el client descubre access_denied al hacer polling).
func (s *NotificationService) PrepareDenied(g repository.CibaGrant) *Delivery {
	switch g.DeliveryMode {
	case types.DeliveryModePush:
		return s.NotifyError(g, "access_denied", "the end-user denied the authorization request")
	case types.DeliveryModePing:
		return s.delivery(g, notification.PingPayload{AuthReqID: g.AuthReqID})
	}
	return nil
}

// NotifyError arma el error CIBA §12 para un client push.
func (s *NotificationService) NotifyError(g repository.CibaGrant, code, desc string) *Delivery {
	return s.delivery(g, notification.ErrorPayload{AuthReqID: g.AuthReqID, Error: code, ErrorDescription: desc})
}

func (s *NotificationService) delivery(g repository.CibaGrant, payload any) *Delivery {
	return &Delivery{
		Mode:     g.DeliveryMode,
		Endpoint: g.ClientNotificationEndpoint,
		Bearer:   g.ClientNotificationToken,
		Payload:  payload,
	}
}

// Send entrega d. d nil no hace nada.
func (s *NotificationService) Send(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	log := logger.From(ctx).With(logger.Layer("ciba"), logger.Op("NotificationService.Send"),
		logger.String("mode", string(d.Mode)))

	err := s.gateway.Send(ctx, d.Endpoint, d.Bearer, d.Payload)
	result := "ok"
	if err != nil {
		result = "error"
		log.Warn("client notification failed", logger.Err(err))
	}
	metrics.Notifications.WithLabelValues(string(d.Mode), result).Inc()
	return err
}
