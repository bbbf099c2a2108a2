// Package config carga la configuración del proceso: config.yaml, luego .env
// y variables IDP_*, luego defaults y Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr         string `yaml:"addr"`
		BaseURL      string `yaml:"base_url"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		// TLS habilita mTLS directo; vacío asume terminación upstream (X-SSL-Cert).
		TLS struct {
			CertFile     string `yaml:"cert_file"`
			KeyFile      string `yaml:"key_file"`
			ClientCAFile string `yaml:"client_ca_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Database struct {
		WriterDSN      string `yaml:"writer_dsn"`
		ReaderDSN      string `yaml:"reader_dsn"`
		MaxConns       int32  `yaml:"max_conns"`
		ConnectTimeout string `yaml:"connect_timeout"`
	} `yaml:"database"`

	Store struct {
		Driver string `yaml:"driver"` // pg | memory
	} `yaml:"store"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		TTL   string `yaml:"ttl"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Signing struct {
		// KeyFile es un PEM ES256; vacío genera una clave efímera (sólo dev).
		KeyFile string `yaml:"key_file"`
		KeyID   string `yaml:"key_id"`
	} `yaml:"signing"`

	CIBA struct {
		NotifyDeny          bool   `yaml:"notify_deny"`
		NotificationTimeout string `yaml:"notification_timeout"`
		MaxAttempts         uint   `yaml:"max_attempts"`
		InitialInterval     string `yaml:"initial_interval"`
		SlowDown            bool   `yaml:"slow_down"`
	} `yaml:"ciba"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Logging struct {
		Env   string `yaml:"env"` // dev | prod
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`

	Bootstrap struct {
		// File es un YAML de tenants, clients y usuarios a sembrar al arrancar.
		File string `yaml:"file"`
	} `yaml:"bootstrap"`
}

// Load lee path (puede no existir si path es ""), aplica overrides y defaults
// y valida. Las rutas relativas se resuelven contra el directorio del YAML.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if path != "" {
		base := filepath.Dir(path)
		c.Signing.KeyFile = resolve(base, c.Signing.KeyFile)
		c.Bootstrap.File = resolve(base, c.Bootstrap.File)
	}
	return &c, nil
}

// LoadDotEnv carga los archivos .env que existan. No pisa variables ya definidas.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Database.ConnectTimeout == "" {
		c.Database.ConnectTimeout = "5s"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "5m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "idp"
	}
	if c.Signing.KeyID == "" {
		c.Signing.KeyID = "idp-1"
	}
	if c.CIBA.NotificationTimeout == "" {
		c.CIBA.NotificationTimeout = "5s"
	}
	if c.CIBA.MaxAttempts == 0 {
		c.CIBA.MaxAttempts = 3
	}
	if c.CIBA.InitialInterval == "" {
		c.CIBA.InitialInterval = "200ms"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "starttls"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "idpserver"
	}
}

// Validate rechaza valores que harían fallar el arranque más tarde.
func (c *Config) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"server.read_timeout":       c.Server.ReadTimeout,
		"server.write_timeout":      c.Server.WriteTimeout,
		"database.connect_timeout":  c.Database.ConnectTimeout,
		"cache.ttl":                 c.Cache.TTL,
		"ciba.notification_timeout": c.CIBA.NotificationTimeout,
		"ciba.initial_interval":     c.CIBA.InitialInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}
	switch c.Store.Driver {
	case "memory":
	case "pg":
		if c.Database.WriterDSN == "" {
			errs = append(errs, errors.New("config: database.writer_dsn is required with store.driver=pg"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store.driver %q", c.Store.Driver))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("config: cache.redis.addr is required with cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind))
	}
	switch c.SMTP.TLS {
	case "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("config: unknown smtp.tls %q", c.SMTP.TLS))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("config: smtp.from is required when smtp.host is set"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("config: tracing.sample_ratio must be within [0,1]"))
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("config: server.tls.cert_file and key_file go together"))
	}
	return errors.Join(errs...)
}

// Duration devuelve un campo ya validado.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

const envPrefix = "IDP_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvFloat(key string) (float64, bool) {
	if s, ok := getEnvStr(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// applyEnvOverrides pisa config.yaml con variables IDP_*.
func (c *Config) applyEnvOverrides() {
	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvStr("SERVER_TLS_CERT_FILE"); ok {
		c.Server.TLS.CertFile = v
	}
	if v, ok := getEnvStr("SERVER_TLS_KEY_FILE"); ok {
		c.Server.TLS.KeyFile = v
	}
	if v, ok := getEnvStr("SERVER_TLS_CLIENT_CA_FILE"); ok {
		c.Server.TLS.ClientCAFile = v
	}

	// DATABASE / STORE
	if v, ok := getEnvStr("DATABASE_WRITER_DSN"); ok {
		c.Database.WriterDSN = v
	}
	if v, ok := getEnvStr("DATABASE_READER_DSN"); ok {
		c.Database.ReaderDSN = v
	}
	if v, ok := getEnvInt("DATABASE_MAX_CONNS"); ok {
		c.Database.MaxConns = int32(v)
	}
	if v, ok := getEnvStr("STORE_DRIVER"); ok {
		c.Store.Driver = strings.ToLower(v)
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// SIGNING
	if v, ok := getEnvStr("SIGNING_KEY_FILE"); ok {
		c.Signing.KeyFile = v
	}
	if v, ok := getEnvStr("SIGNING_KEY_ID"); ok {
		c.Signing.KeyID = v
	}

	// CIBA
	if v, ok := getEnvBool("CIBA_NOTIFY_DENY"); ok {
		c.CIBA.NotifyDeny = v
	}
	if v, ok := getEnvBool("CIBA_SLOW_DOWN"); ok {
		c.CIBA.SlowDown = v
	}
	if v, ok := getEnvStr("CIBA_NOTIFICATION_TIMEOUT"); ok {
		c.CIBA.NotificationTimeout = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}

	// LOGGING / TRACING
	if v, ok := getEnvStr("LOG_ENV"); ok {
		c.Logging.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := getEnvBool("TRACING_ENABLED"); ok {
		c.Tracing.Enabled = v
	}
	if v, ok := getEnvFloat("TRACING_SAMPLE_RATIO"); ok {
		c.Tracing.SampleRatio = v
	}

	if v, ok := getEnvStr("BOOTSTRAP_FILE"); ok {
		c.Bootstrap.File = v
	}
}
