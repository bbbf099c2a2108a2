package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// AuthorizationGranted es el ledger durable por (tenant, client, user) de derechos
// consentidos. Las fusiones son monótonas: nunca pierden scopes ni claims.
type AuthorizationGranted struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenant_id"`
	ClientID  string             `json:"client_id"`
	UserSub   string             `json:"user_sub"`
	Grant     AuthorizationGrant `json:"grant"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewAuthorizationGranted crea la primera entrada del ledger.
func NewAuthorizationGranted(id string, grant AuthorizationGrant, now time.Time) AuthorizationGranted {
	return AuthorizationGranted{
		ID:        id,
		TenantID:  grant.TenantID,
		ClientID:  grant.ClientID,
		UserSub:   grant.User.Sub,
		Grant:     grant,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Exists indica si el ledger tiene entrada.
func (a AuthorizationGranted) Exists() bool { return a.ID != "" }

// Merge devuelve una copia con el grant nuevo fusionado.
func (a AuthorizationGranted) Merge(grant AuthorizationGrant, now time.Time) AuthorizationGranted {
	out := a
	out.Grant = a.Grant.Merge(grant)
	out.UpdatedAt = now
	return out
}

// IsGrantedScopes indica si todos los scopes ya fueron consentidos.
func (a AuthorizationGranted) IsGrantedScopes(scopes types.Scopes) bool {
	return a.Grant.Scopes.Covers(scopes)
}

// UnauthorizedScopes devuelve los scopes aún no consentidos.
func (a AuthorizationGranted) UnauthorizedScopes(scopes types.Scopes) types.Scopes {
	return a.Grant.Scopes.Missing(scopes)
}

// IsGrantedClaims indica si todos los claims ya fueron consentidos.
func (a AuthorizationGranted) IsGrantedClaims(claims GrantedClaims) bool {
	return a.Grant.Claims.Covers(claims)
}

// IsConsentedClaims indica si los documentos requeridos ya fueron aceptados.
func (a AuthorizationGranted) IsConsentedClaims(required ConsentClaims) bool {
	return a.Grant.ConsentClaims.Covers(required)
}

// AuthorizationGrantedRepository persiste el ledger.
type AuthorizationGrantedRepository interface {
	// Find obtiene la entrada de (client, user).
	// Retorna el valor cero (Exists() == false) si no existe.
	Find(ctx context.Context, tenantID, clientID, userSub string) (AuthorizationGranted, error)

	// FindForUpdate es Find con bloqueo de fila hasta el fin de la transacción.
	FindForUpdate(ctx context.Context, tenantID, clientID, userSub string) (AuthorizationGranted, error)

	// Register crea la entrada.
	// Retorna ErrConflict si ya existe una para (tenant, client, user).
	Register(ctx context.Context, tenantID string, granted AuthorizationGranted) error

	// Update reemplaza el grant de una entrada existente.
	Update(ctx context.Context, tenantID string, granted AuthorizationGranted) error
}
