package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/security/password"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
)

const seedYAML = `
tenants:
  - server:
      tenant_id: acme
      issuer: https://idp.example/acme
      scopes_supported: [openid, profile, "fapi:read"]
      grant_types_supported: [authorization_code]
    clients:
      - client_id: app
        client_secret: s3cret
        scope: openid profile
        redirect_uris: [https://rp.example/cb]
    users:
      - sub: user-1
        preferred_username: alice
        email: alice@example.com
        password: correct horse
`

func TestLoadAndApply(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(p, []byte(seedYAML), 0o600))

	f, err := Load(p)
	require.NoError(t, err)

	dal := memory.New()
	ctx := context.Background()
	require.NoError(t, Apply(ctx, dal, f, password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}))

	server, err := dal.ServerConfigurations().Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "https://idp.example/acme", server.Issuer)

	client, err := dal.ClientConfigurations().Get(ctx, "acme", "app")
	require.NoError(t, err)
	require.Equal(t, "acme", client.TenantID)

	u, err := dal.Users().FindByUsername(ctx, "acme", "alice")
	require.NoError(t, err)
	require.True(t, password.Verify("correct horse", u.PasswordHash))
}

func TestValidate_RejectsBadScopes(t *testing.T) {
	f := &File{Tenants: []Tenant{{}}}
	require.ErrorContains(t, f.Validate(), "tenant_id and issuer are required")

	p := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
tenants:
  - server:
      tenant_id: acme
      issuer: https://idp.example/acme
      scopes_supported: ["Bad Scope"]
`), 0o600))
	_, err := Load(p)
	require.ErrorContains(t, err, "invalid scope name")
}
