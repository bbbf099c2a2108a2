package repository

import (
	"context"
	"errors"
	"time"
)

// OAuthToken es el bundle access/refresh/id_token emitido sobre un grant.
//
// Los valores en claro sólo viven en memoria al emitir; los repositorios
// persisten y buscan por hash.
type OAuthToken struct {
	ID                    string             `json:"id"`
	TenantID              string             `json:"tenant_id"`
	TokenType             string             `json:"token_type"`
	AccessToken           string             `json:"-"`
	AccessTokenHash       string             `json:"access_token_hash"`
	AccessTokenExpiresAt  time.Time          `json:"access_token_expires_at"`
	RefreshToken          string             `json:"-"`
	RefreshTokenHash      string             `json:"refresh_token_hash,omitempty"`
	RefreshTokenExpiresAt time.Time          `json:"refresh_token_expires_at,omitempty"`
	IDToken               string             `json:"-"`
	Grant                 AuthorizationGrant `json:"grant"`
	// CnfX5tS256 es el thumbprint del certificado al que está ligado el token (RFC 8705).
	CnfX5tS256 string    `json:"cnf_x5t_s256,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrInvalidTokenExpiry indica un token cuya expiración no es posterior a su emisión.
var ErrInvalidTokenExpiry = errors.New("token expiry must be after issuance")

// Exists indica si el token fue encontrado.
func (t OAuthToken) Exists() bool { return t.ID != "" }

// HasRefreshToken indica si el bundle incluye refresh token.
func (t OAuthToken) HasRefreshToken() bool { return t.RefreshTokenHash != "" }

// IsRefreshTokenExpired compara contra now.
func (t OAuthToken) IsRefreshTokenExpired(now time.Time) bool {
	return !now.Before(t.RefreshTokenExpiresAt)
}

// Validate verifica que las expiraciones sean estrictamente futuras respecto de la emisión.
func (t OAuthToken) Validate() error {
	if !t.AccessTokenExpiresAt.After(t.CreatedAt) {
		return ErrInvalidTokenExpiry
	}
	if t.HasRefreshToken() && !t.RefreshTokenExpiresAt.After(t.CreatedAt) {
		return ErrInvalidTokenExpiry
	}
	return nil
}

// OAuthTokenRepository persiste tokens emitidos.
type OAuthTokenRepository interface {
	// Register persiste un token. Retorna ErrInvalidTokenExpiry si Validate falla.
	Register(ctx context.Context, tenantID string, token OAuthToken) error

	// FindByAccessTokenHash retorna el valor cero si no existe.
	FindByAccessTokenHash(ctx context.Context, tenantID, hash string) (OAuthToken, error)

	// FindByRefreshTokenHash retorna el valor cero si no existe.
	FindByRefreshTokenHash(ctx context.Context, tenantID, hash string) (OAuthToken, error)

	// Consume elimina el token de forma atómica. Retorna ErrNotFound si ya no
	// existe: de dos rotaciones concurrentes sólo una lo consume.
	Consume(ctx context.Context, tenantID, id string) error
}
