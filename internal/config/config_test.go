package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "memory", c.Store.Driver)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, uint(3), c.CIBA.MaxAttempts)
	require.Equal(t, 5*time.Second, Duration(c.CIBA.NotificationTimeout))
	require.Equal(t, "starttls", c.SMTP.TLS)
}

func TestLoad_FileAndEnv(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9000"
signing:
  key_file: keys/idp.pem
ciba:
  notify_deny: true
bootstrap:
  file: seed.yaml
`)
	t.Setenv("IDP_SERVER_ADDR", ":9443")
	t.Setenv("IDP_LOG_LEVEL", "DEBUG")

	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9443", c.Server.Addr)
	require.Equal(t, "debug", c.Logging.Level)
	require.True(t, c.CIBA.NotifyDeny)
	require.Equal(t, filepath.Join(filepath.Dir(p), "keys", "idp.pem"), c.Signing.KeyFile)
	require.Equal(t, filepath.Join(filepath.Dir(p), "seed.yaml"), c.Bootstrap.File)
}

func TestValidate(t *testing.T) {
	p := writeYAML(t, `
store:
  driver: pg
cache:
  kind: redis
ciba:
  initial_interval: soon
`)
	_, err := Load(p)
	require.Error(t, err)
	require.ErrorContains(t, err, "writer_dsn")
	require.ErrorContains(t, err, "cache.redis.addr")
	require.ErrorContains(t, err, "ciba.initial_interval")
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))

	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte("IDP_TEST_DOTENV=yes\n"), 0o600))
	t.Setenv("IDP_TEST_DOTENV", "")
	os.Unsetenv("IDP_TEST_DOTENV")
	require.NoError(t, LoadDotEnv(p))
	require.Equal(t, "yes", os.Getenv("IDP_TEST_DOTENV"))
}
