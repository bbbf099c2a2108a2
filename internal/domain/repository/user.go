package repository

import (
	"context"
	"time"
)

// User es el usuario final consumido por los handlers (no se administra aquí).
type User struct {
	Sub                 string `json:"sub"`
	PreferredUsername   string `json:"preferred_username,omitempty"`
	Name                string `json:"name,omitempty"`
	GivenName           string `json:"given_name,omitempty"`
	FamilyName          string `json:"family_name,omitempty"`
	Email               string `json:"email,omitempty"`
	EmailVerified       bool   `json:"email_verified,omitempty"`
	PhoneNumber         string `json:"phone_number,omitempty"`
	PhoneNumberVerified bool   `json:"phone_number_verified,omitempty"`
	PasswordHash        string `json:"-"`
}

// Exists indica si el usuario fue resuelto.
func (u User) Exists() bool { return u.Sub != "" }

var userClaims = map[string]func(User) (any, bool){
	"preferred_username":    func(u User) (any, bool) { return u.PreferredUsername, u.PreferredUsername != "" },
	"name":                  func(u User) (any, bool) { return u.Name, u.Name != "" },
	"given_name":            func(u User) (any, bool) { return u.GivenName, u.GivenName != "" },
	"family_name":           func(u User) (any, bool) { return u.FamilyName, u.FamilyName != "" },
	"email":                 func(u User) (any, bool) { return u.Email, u.Email != "" },
	"email_verified":        func(u User) (any, bool) { return u.EmailVerified, u.Email != "" },
	"phone_number":          func(u User) (any, bool) { return u.PhoneNumber, u.PhoneNumber != "" },
	"phone_number_verified": func(u User) (any, bool) { return u.PhoneNumberVerified, u.PhoneNumber != "" },
}

// Claims devuelve los claims pedidos que el usuario tiene cargados.
// Los nombres desconocidos o vacíos se omiten.
func (u User) Claims(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		get, ok := userClaims[n]
		if !ok {
			continue
		}
		if v, ok := get(u); ok {
			out[n] = v
		}
	}
	return out
}

// Authentication registra cómo se autenticó el usuario.
type Authentication struct {
	Time    time.Time `json:"time"`
	Methods []string  `json:"methods,omitempty"`
	ACR     string    `json:"acr,omitempty"`
}

// Exists indica si hay un registro de autenticación.
func (a Authentication) Exists() bool { return !a.Time.IsZero() }

// UserRepository resuelve usuarios por sus identificadores.
type UserRepository interface {
	// Get obtiene un usuario por sub.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, tenantID, sub string) (*User, error)

	// FindByEmail busca por email. Retorna ErrNotFound si no existe.
	FindByEmail(ctx context.Context, tenantID, email string) (*User, error)

	// FindByPhone busca por número de teléfono. Retorna ErrNotFound si no existe.
	FindByPhone(ctx context.Context, tenantID, phone string) (*User, error)

	// FindByUsername busca por preferred_username. Retorna ErrNotFound si no existe.
	FindByUsername(ctx context.Context, tenantID, username string) (*User, error)

	// Put crea o reemplaza un usuario (bootstrap).
	Put(ctx context.Context, tenantID string, u User) error
}
