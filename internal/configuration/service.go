// Package configuration resuelve la configuración de servidor y clients con
// una caché de lectura delante del store.
//
// Las lecturas concurrentes de la misma key se colapsan con singleflight. Las
// escrituras pasan por Put*, que invalida la caché después del commit.
package configuration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
)

const DefaultTTL = 5 * time.Minute

// Service es el punto de lectura de configuración para los handlers.
type Service struct {
	dal   store.DataAccessLayer
	cache cache.Client
	ttl   time.Duration
	sf    singleflight.Group
}

// NewService crea el servicio. cache nil desactiva el cacheo.
func NewService(dal store.DataAccessLayer, c cache.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{dal: dal, cache: c, ttl: ttl}
}

func serverKey(tenantID string) string { return "cfg:server:" + tenantID }

func clientKey(tenantID, clientID string) string { return "cfg:client:" + tenantID + ":" + clientID }

// Server obtiene la configuración del tenant.
// Retorna un error que satisface repository.IsConfigurationNotFound si no existe.
func (s *Service) Server(ctx context.Context, tenantID string) (repository.ServerConfiguration, error) {
	return load(ctx, s, serverKey(tenantID), func(ctx context.Context) (*repository.ServerConfiguration, error) {
		return s.dal.ServerConfigurations().Get(ctx, tenantID)
	})
}

// Client obtiene la configuración de un client.
func (s *Service) Client(ctx context.Context, tenantID, clientID string) (repository.ClientConfiguration, error) {
	return load(ctx, s, clientKey(tenantID, clientID), func(ctx context.Context) (*repository.ClientConfiguration, error) {
		return s.dal.ClientConfigurations().Get(ctx, tenantID, clientID)
	})
}

// PutServer persiste la configuración e invalida la caché tras el commit.
func (s *Service) PutServer(ctx context.Context, cfg repository.ServerConfiguration) error {
	err := s.dal.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		return s.dal.ServerConfigurations().Put(ctx, cfg)
	})
	if err != nil {
		return err
	}
	return s.invalidate(ctx, serverKey(cfg.TenantID))
}

// PutClient persiste la configuración del client e invalida la caché tras el commit.
func (s *Service) PutClient(ctx context.Context, cfg repository.ClientConfiguration) error {
	err := s.dal.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
		return s.dal.ClientConfigurations().Put(ctx, cfg)
	})
	if err != nil {
		return err
	}
	return s.invalidate(ctx, clientKey(cfg.TenantID, cfg.ClientID))
}

func (s *Service) invalidate(ctx context.Context, key string) error {
	s.sf.Forget(key)
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("configuration: invalidate %s: %w", key, err)
	}
	return nil
}

func load[T any](ctx context.Context, s *Service, key string, fetch func(context.Context) (*T, error)) (T, error) {
	var zero T
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var out T
			if err := json.Unmarshal([]byte(raw), &out); err == nil {
				return out, nil
			}
		} else if !cache.IsNotFound(err) {
			logger.From(ctx).Warn("configuration cache read failed", logger.Layer("configuration"), logger.Err(err))
		}
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		cfg, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if b, err := json.Marshal(cfg); err == nil {
				if err := s.cache.Set(ctx, key, string(b), s.ttl); err != nil {
					logger.From(ctx).Warn("configuration cache write failed", logger.Layer("configuration"), logger.Err(err))
				}
			}
		}
		return *cfg, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
