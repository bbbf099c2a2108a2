// Package bootstrap siembra tenants, clients y usuarios desde un YAML al
// arrancar. Pensado para el store en memoria y para entornos de desarrollo.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/security/password"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/validation"
)

// File es el formato del YAML de bootstrap.
type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Tenant agrupa la configuración de un tenant.
type Tenant struct {
	Server  repository.ServerConfiguration   `yaml:"server"`
	Clients []repository.ClientConfiguration `yaml:"clients"`
	Users   []User                           `yaml:"users"`
}

// User es un usuario con password en claro; se hashea antes de persistir.
type User struct {
	Sub               string `yaml:"sub"`
	PreferredUsername string `yaml:"preferred_username"`
	Name              string `yaml:"name"`
	Email             string `yaml:"email"`
	EmailVerified     bool   `yaml:"email_verified"`
	PhoneNumber       string `yaml:"phone_number"`
	Password          string `yaml:"password"`
}

// Load lee y valida un archivo de bootstrap.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("bootstrap: parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate revisa identificadores y nombres de scope antes de tocar el store.
func (f *File) Validate() error {
	var errs []error
	for i, t := range f.Tenants {
		if t.Server.TenantID == "" || t.Server.Issuer == "" {
			errs = append(errs, fmt.Errorf("bootstrap: tenants[%d]: tenant_id and issuer are required", i))
			continue
		}
		if err := validation.ValidateScopes(t.Server.ScopesSupported); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap: tenant %s: %w", t.Server.TenantID, err))
		}
		for _, c := range t.Clients {
			if c.ClientID == "" {
				errs = append(errs, fmt.Errorf("bootstrap: tenant %s: client without client_id", t.Server.TenantID))
				continue
			}
			if err := validation.ValidateScopes(c.Scopes()); err != nil {
				errs = append(errs, fmt.Errorf("bootstrap: client %s: %w", c.ClientID, err))
			}
		}
		for _, u := range t.Users {
			if u.Sub == "" {
				errs = append(errs, fmt.Errorf("bootstrap: tenant %s: user without sub", t.Server.TenantID))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply persiste todo en un único unit of work. Los clients heredan el
// tenant_id de su tenant.
func Apply(ctx context.Context, dal store.DataAccessLayer, f *File, params password.Params) error {
	log := logger.From(ctx).With(logger.Component("bootstrap"))
	err := dal.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		for _, t := range f.Tenants {
			tenantID := t.Server.TenantID
			if err := dal.ServerConfigurations().Put(ctx, t.Server); err != nil {
				return fmt.Errorf("bootstrap: server %s: %w", tenantID, err)
			}
			for _, c := range t.Clients {
				c.TenantID = tenantID
				if err := dal.ClientConfigurations().Put(ctx, c); err != nil {
					return fmt.Errorf("bootstrap: client %s: %w", c.ClientID, err)
				}
			}
			for _, u := range t.Users {
				user, err := u.toUser(params)
				if err != nil {
					return fmt.Errorf("bootstrap: user %s: %w", u.Sub, err)
				}
				if err := dal.Users().Put(ctx, tenantID, user); err != nil {
					return fmt.Errorf("bootstrap: user %s: %w", u.Sub, err)
				}
			}
			log.Info("tenant seeded",
				logger.TenantID(tenantID),
				logger.Int("clients", len(t.Clients)),
				logger.Int("users", len(t.Users)))
		}
		return nil
	})
	return err
}

func (u User) toUser(params password.Params) (repository.User, error) {
	out := repository.User{
		Sub:               u.Sub,
		PreferredUsername: u.PreferredUsername,
		Name:              u.Name,
		Email:             u.Email,
		EmailVerified:     u.EmailVerified,
		PhoneNumber:       u.PhoneNumber,
	}
	if u.Password != "" {
		h, err := password.Hash(params, u.Password)
		if err != nil {
			return repository.User{}, err
		}
		out.PasswordHash = h
	}
	return out, nil
}
