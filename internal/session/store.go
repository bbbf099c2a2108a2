// Package session implementa repository.SessionRepository sobre el cache.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

const keyPrefix = "oauth_session:"

// Store guarda sesiones serializadas en JSON con TTL igual a su expiración.
type Store struct {
	c   cache.Client
	now func() time.Time
}

var _ repository.SessionRepository = (*Store)(nil)

func NewStore(c cache.Client) *Store {
	return &Store{c: c, now: time.Now}
}

func (s *Store) Find(ctx context.Context, key string) (repository.OAuthSession, error) {
	raw, err := s.c.Get(ctx, keyPrefix+key)
	if cache.IsNotFound(err) {
		return repository.OAuthSession{}, nil
	}
	if err != nil {
		return repository.OAuthSession{}, fmt.Errorf("session: get: %w", err)
	}
	var out repository.OAuthSession
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return repository.OAuthSession{}, fmt.Errorf("session: decode: %w", err)
	}
	if out.IsExpired(s.now()) {
		return repository.OAuthSession{}, nil
	}
	return out, nil
}

func (s *Store) Register(ctx context.Context, sess repository.OAuthSession) error {
	return s.put(ctx, sess)
}

func (s *Store) Update(ctx context.Context, sess repository.OAuthSession) error {
	return s.put(ctx, sess)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.c.Delete(ctx, keyPrefix+key)
}

func (s *Store) put(ctx context.Context, sess repository.OAuthSession) error {
	if sess.Key == "" {
		return fmt.Errorf("session: %w: empty key", repository.ErrInvalidInput)
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, sess.Key)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return s.c.Set(ctx, keyPrefix+sess.Key, string(b), ttl)
}

// New construye una sesión nueva para (tenant, client).
func New(tenantID, clientID string, user repository.User, authn repository.Authentication, now time.Time, ttl time.Duration) repository.OAuthSession {
	return repository.OAuthSession{
		Key:            repository.SessionKey(tenantID, clientID),
		TenantID:       tenantID,
		ClientID:       clientID,
		User:           user,
		Authentication: authn,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
}
