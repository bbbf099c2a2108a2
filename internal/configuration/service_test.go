package configuration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
)

func TestService_NotFound(t *testing.T) {
	s := NewService(memory.New(), cache.NewMemory(""), time.Minute)
	_, err := s.Server(context.Background(), "missing")
	require.True(t, repository.IsConfigurationNotFound(err))

	_, err = s.Client(context.Background(), "missing", "c")
	require.True(t, repository.IsConfigurationNotFound(err))
}

func TestService_PutInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	dal := memory.New()
	s := NewService(dal, cache.NewMemory(""), time.Minute)

	require.NoError(t, s.PutClient(ctx, repository.ClientConfiguration{TenantID: "acme", ClientID: "app", ClientName: "v1"}))
	got, err := s.Client(ctx, "acme", "app")
	require.NoError(t, err)
	require.Equal(t, "v1", got.ClientName)

	// Escritura directa al store: la caché sigue sirviendo v1.
	require.NoError(t, dal.ClientConfigurations().Put(ctx, repository.ClientConfiguration{TenantID: "acme", ClientID: "app", ClientName: "stale"}))
	got, err = s.Client(ctx, "acme", "app")
	require.NoError(t, err)
	require.Equal(t, "v1", got.ClientName)

	// Put invalida.
	require.NoError(t, s.PutClient(ctx, repository.ClientConfiguration{TenantID: "acme", ClientID: "app", ClientName: "v2"}))
	got, err = s.Client(ctx, "acme", "app")
	require.NoError(t, err)
	require.Equal(t, "v2", got.ClientName)
}

func TestService_WithoutCache(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.New(), nil, 0)
	require.NoError(t, s.PutServer(ctx, repository.ServerConfiguration{TenantID: "acme", Issuer: "https://idp.example/acme"}))
	got, err := s.Server(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "https://idp.example/acme", got.Issuer)
}
