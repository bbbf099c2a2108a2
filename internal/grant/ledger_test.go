package grant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
)

func authorizationGrant(scopes ...string) repository.AuthorizationGrant {
	return repository.AuthorizationGrant{
		TenantID:       "acme",
		ClientID:       "app",
		User:           repository.User{Sub: "user-1"},
		Authentication: repository.Authentication{Time: time.Now()},
		GrantType:      types.GrantTypeAuthorizationCode,
		Scopes:         types.NewScopes(scopes...),
		Claims:         repository.GrantedClaims{UserInfo: []string{"email"}},
	}
}

func merge(t *testing.T, dal store.DataAccessLayer, l *Ledger, g repository.AuthorizationGrant) repository.AuthorizationGranted {
	t.Helper()
	var out repository.AuthorizationGranted
	err := dal.Do(context.Background(), store.ReadWrite, func(ctx context.Context) error {
		var err error
		out, err = l.Merge(ctx, g)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestMerge_IsMonotonic(t *testing.T) {
	dal := memory.New()
	l := New(dal)

	first := merge(t, dal, l, authorizationGrant("openid", "profile", "email"))
	second := merge(t, dal, l, authorizationGrant("openid"))

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, types.Scopes{"email", "openid", "profile"}, second.Grant.Scopes)
	require.Equal(t, []string{"email"}, second.Grant.Claims.UserInfo)

	found, err := l.Find(context.Background(), "acme", "app", "user-1")
	require.NoError(t, err)
	require.True(t, found.IsGrantedScopes(types.Scopes{"profile", "openid"}))
}

func TestMerge_SkipsClientCredentials(t *testing.T) {
	dal := memory.New()
	g := authorizationGrant("read")
	g.User = repository.User{}
	out := merge(t, dal, New(dal), g)
	require.False(t, out.Exists())
}

func TestMerge_ConcurrentFirstConsent(t *testing.T) {
	dal := memory.New()
	l := New(dal)

	scopes := []string{"openid", "profile", "email", "phone", "read", "write"}
	var wg sync.WaitGroup
	for _, s := range scopes {
		wg.Add(1)
		go func(scope string) {
			defer wg.Done()
			_ = dal.Do(context.Background(), store.ReadWrite, func(ctx context.Context) error {
				_, err := l.Merge(ctx, authorizationGrant(scope))
				return err
			})
		}(s)
	}
	wg.Wait()

	found, err := l.Find(context.Background(), "acme", "app", "user-1")
	require.NoError(t, err)
	require.True(t, found.IsGrantedScopes(types.NewScopes(scopes...)))
}

// racingDAL simula otro unit of work que crea la fila entre el Find y el Register.
type racingDAL struct {
	*memory.DAL
}

func (d racingDAL) Granted() repository.AuthorizationGrantedRepository {
	return &racingRepo{AuthorizationGrantedRepository: d.DAL.Granted()}
}

type racingRepo struct {
	repository.AuthorizationGrantedRepository
	raced bool
}

func (r *racingRepo) Register(ctx context.Context, tenantID string, g repository.AuthorizationGranted) error {
	if !r.raced {
		r.raced = true
		other := repository.NewAuthorizationGranted("other-row", authorizationGrant("write"), time.Now())
		if err := r.AuthorizationGrantedRepository.Register(ctx, tenantID, other); err != nil {
			return err
		}
	}
	return r.AuthorizationGrantedRepository.Register(ctx, tenantID, g)
}

func TestMerge_RetriesAfterConflict(t *testing.T) {
	dal := racingDAL{DAL: memory.New()}
	out := merge(t, dal, New(dal), authorizationGrant("openid"))

	require.Equal(t, "other-row", out.ID)
	require.Equal(t, types.Scopes{"openid", "write"}, out.Grant.Scopes)
}
