package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/idpserver/internal/config"
	"github.com/dropDatabas3/idpserver/internal/jose"
)

func TestKeysGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "keys", "idp.pem")
	cmd := newKeysCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"generate", "--out", out, "--kid", "k-1"})
	require.NoError(t, cmd.Execute())

	key, err := jose.LoadES256File(out, "")
	require.NoError(t, err)
	require.NotNil(t, key.Private)

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	require.Equal(t, "k-1", set.Keys[0]["kid"])

	st, err := os.Stat(out)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	again := newKeysCmd()
	again.SetOut(&bytes.Buffer{})
	again.SetArgs([]string{"generate", "--out", out})
	require.Error(t, again.Execute())
}

func TestVersion(t *testing.T) {
	cmd := newVersionCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	require.NoError(t, cmd.Execute())
	require.Contains(t, stdout.String(), "idpserver dev")
}

func TestWire_MemoryDefaults(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
tenants:
  - server:
      tenant_id: acme
      issuer: https://idp.example/acme
      grant_types_supported: [client_credentials]
      scopes_supported: [read]
    clients:
      - client_id: app
        client_secret: s3cret
        grant_types: [client_credentials]
        scope: read
        token_endpoint_auth_method: client_secret_basic
`), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Bootstrap.File = seed

	a, err := wire(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/acme/v1/jwks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
