package repository

import (
	"context"
	"time"
)

// AuthorizationCodeGrant liga un code de un solo uso a los derechos otorgados.
type AuthorizationCodeGrant struct {
	Code                   string             `json:"code"`
	TenantID               string             `json:"tenant_id"`
	AuthorizationRequestID string             `json:"authorization_request_id"`
	Grant                  AuthorizationGrant `json:"grant"`
	// RedirectURI es la redirect_uri enviada en el request original (vacía si no se envió).
	RedirectURI string    `json:"redirect_uri,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exists indica si el code fue encontrado.
func (g AuthorizationCodeGrant) Exists() bool { return g.Code != "" }

// IsExpired compara contra now.
func (g AuthorizationCodeGrant) IsExpired(now time.Time) bool { return !now.Before(g.ExpiresAt) }

// AuthorizationCodeGrantRepository persiste codes.
type AuthorizationCodeGrantRepository interface {
	// Register persiste un code nuevo.
	Register(ctx context.Context, tenantID string, grant AuthorizationCodeGrant) error

	// Find obtiene un code.
	// Retorna el valor cero (Exists() == false) si no existe.
	Find(ctx context.Context, tenantID, code string) (AuthorizationCodeGrant, error)

	// Consume elimina el code de forma atómica.
	// Retorna ErrNotFound si otro request ya lo consumió.
	Consume(ctx context.Context, tenantID, code string) error
}
