package repository

import (
	"context"
	"time"
)

// OAuthSession es la caché de autenticación por (tenant, client).
type OAuthSession struct {
	Key            string         `json:"key"`
	TenantID       string         `json:"tenant_id"`
	ClientID       string         `json:"client_id"`
	User           User           `json:"user"`
	Authentication Authentication `json:"authentication"`
	// Attributes es una bolsa extensible (ej: challenge de verificación de email pendiente).
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// SessionKey construye la clave de sesión de un client.
func SessionKey(tenantID, clientID string) string {
	return tenantID + ":" + clientID
}

// Exists indica si la sesión fue encontrada.
func (s OAuthSession) Exists() bool { return s.Key != "" }

// IsExpired compara contra now.
func (s OAuthSession) IsExpired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// IsValidFor indica si la sesión sirve para un request: viva, con usuario,
// y con una autenticación dentro de max_age si fue especificado.
func (s OAuthSession) IsValidFor(req AuthorizationRequest, now time.Time) bool {
	if !s.Exists() || s.IsExpired(now) || !s.User.Exists() {
		return false
	}
	if req.MaxAge != nil {
		deadline := s.Authentication.Time.Add(time.Duration(*req.MaxAge) * time.Second)
		if !s.Authentication.Exists() || !now.Before(deadline) {
			return false
		}
	}
	return true
}

// SessionRepository es el delegado de sesión (cache-backed).
type SessionRepository interface {
	// Find retorna el valor cero (Exists() == false) si no existe o expiró.
	Find(ctx context.Context, key string) (OAuthSession, error)

	// Register crea la sesión.
	Register(ctx context.Context, session OAuthSession) error

	// Update reemplaza la sesión.
	Update(ctx context.Context, session OAuthSession) error

	// Delete elimina la sesión. No falla si no existe.
	Delete(ctx context.Context, key string) error
}
