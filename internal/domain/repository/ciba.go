package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// BackchannelAuthenticationRequest es el análogo CIBA de AuthorizationRequest.
type BackchannelAuthenticationRequest struct {
	ID                      string               `json:"id"`
	TenantID                string               `json:"tenant_id"`
	Profile                 types.Profile        `json:"profile"`
	DeliveryMode            types.DeliveryMode   `json:"delivery_mode"`
	Scopes                  types.Scopes         `json:"scopes"`
	ClientID                string               `json:"client_id"`
	ClientNotificationToken string               `json:"client_notification_token,omitempty"`
	LoginHint               string               `json:"login_hint,omitempty"`
	LoginHintToken          string               `json:"login_hint_token,omitempty"`
	IDTokenHint             string               `json:"id_token_hint,omitempty"`
	ACRValues               string               `json:"acr_values,omitempty"`
	BindingMessage          string               `json:"binding_message,omitempty"`
	UserCode                string               `json:"user_code,omitempty"`
	// RequestedExpiry en segundos; nil significa no especificado.
	RequestedExpiry      *int64               `json:"requested_expiry,omitempty"`
	AuthorizationDetails AuthorizationDetails `json:"authorization_details,omitempty"`
	Request              string               `json:"request,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
}

// Exists indica si el request fue encontrado.
func (r BackchannelAuthenticationRequest) Exists() bool { return r.ID != "" }

// HintCount cuenta cuántos hints de usuario trae el request.
func (r BackchannelAuthenticationRequest) HintCount() int {
	n := 0
	for _, h := range []string{r.LoginHint, r.LoginHintToken, r.IDTokenHint} {
		if h != "" {
			n++
		}
	}
	return n
}

// CibaGrant envuelve un BackchannelAuthenticationRequest con estado mutable.
type CibaGrant struct {
	AuthReqID                          string             `json:"auth_req_id"`
	TenantID                           string             `json:"tenant_id"`
	BackchannelAuthenticationRequestID string             `json:"backchannel_authentication_request_id"`
	Grant                              AuthorizationGrant `json:"grant"`
	Status                             types.CibaStatus   `json:"status"`
	DeliveryMode                       types.DeliveryMode `json:"delivery_mode"`
	ClientNotificationEndpoint         string             `json:"client_notification_endpoint,omitempty"`
	ClientNotificationToken            string             `json:"client_notification_token,omitempty"`
	// Interval es el intervalo mínimo de polling en segundos.
	Interval  int64     `json:"interval"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	// LastPolledAt se usa para responder slow_down.
	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
}

// Exists indica si el grant fue encontrado.
func (g CibaGrant) Exists() bool { return g.AuthReqID != "" }

// IsExpired se evalúa al leer; no existe un estado "expired" persistido.
func (g CibaGrant) IsExpired(now time.Time) bool { return !now.Before(g.ExpiresAt) }

// IsPending indica que aún no hubo decisión.
func (g CibaGrant) IsPending() bool { return g.Status == types.CibaStatusPending }

// IsAuthorized indica que el usuario autorizó.
func (g CibaGrant) IsAuthorized() bool { return g.Status == types.CibaStatusAuthorized }

// IsAccessDenied indica que el usuario rechazó.
func (g CibaGrant) IsAccessDenied() bool { return g.Status == types.CibaStatusAccessDenied }

// ExpiresIn devuelve los segundos restantes (0 si expiró).
func (g CibaGrant) ExpiresIn(now time.Time) int64 {
	d := g.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d.Seconds())
}

// BackchannelAuthenticationRequestRepository persiste requests CIBA.
type BackchannelAuthenticationRequestRepository interface {
	// Register persiste un request nuevo.
	Register(ctx context.Context, tenantID string, req BackchannelAuthenticationRequest) error

	// Get obtiene un request por ID.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, tenantID, id string) (*BackchannelAuthenticationRequest, error)

	// Find retorna el valor cero si no existe.
	Find(ctx context.Context, tenantID, id string) (BackchannelAuthenticationRequest, error)

	// Delete elimina el request. No falla si no existe.
	Delete(ctx context.Context, tenantID, id string) error
}

// CibaGrantRepository persiste CibaGrants.
type CibaGrantRepository interface {
	// Register persiste un grant nuevo en estado pending.
	Register(ctx context.Context, tenantID string, grant CibaGrant) error

	// Get obtiene un grant por auth_req_id.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, tenantID, authReqID string) (*CibaGrant, error)

	// Find retorna el valor cero si no existe.
	Find(ctx context.Context, tenantID, authReqID string) (CibaGrant, error)

	// Transition cambia el estado sólo si el estado actual es from, y reemplaza el grant.
	// Retorna ErrNotFound si no existe y ErrConflict si el estado ya cambió.
	Transition(ctx context.Context, tenantID, authReqID string, from, to types.CibaStatus, grant AuthorizationGrant) error

	// TouchPolled registra el instante del último polling.
	TouchPolled(ctx context.Context, tenantID, authReqID string, at time.Time) error

	// DeleteIfStatus elimina el grant sólo si su estado es status.
	// Retorna ErrNotFound si no había fila en ese estado.
	DeleteIfStatus(ctx context.Context, tenantID, authReqID string, status types.CibaStatus) error
}
