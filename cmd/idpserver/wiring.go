package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/idpserver/internal/bootstrap"
	"github.com/dropDatabas3/idpserver/internal/cache"
	"github.com/dropDatabas3/idpserver/internal/ciba"
	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/config"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/email"
	"github.com/dropDatabas3/idpserver/internal/grant"
	httpx "github.com/dropDatabas3/idpserver/internal/http"
	"github.com/dropDatabas3/idpserver/internal/jose"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/notification"
	"github.com/dropDatabas3/idpserver/internal/oauth"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/rate"
	"github.com/dropDatabas3/idpserver/internal/security/password"
	"github.com/dropDatabas3/idpserver/internal/session"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/store/memory"
	"github.com/dropDatabas3/idpserver/internal/store/pg"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// app es el grafo de dependencias armado para serve.
type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.L().Warn("close failed", logger.Err(err))
		}
	}
}

func wire(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log := logger.Named("wiring")
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	// Store
	var (
		dal     store.DataAccessLayer
		pgDAL   *pg.DAL
		pingers []func(context.Context) error
	)
	switch cfg.Store.Driver {
	case "pg":
		pgDAL, err = pg.Open(ctx, pg.Config{
			WriterDSN:      cfg.Database.WriterDSN,
			ReaderDSN:      cfg.Database.ReaderDSN,
			MaxConns:       cfg.Database.MaxConns,
			ConnectTimeout: config.Duration(cfg.Database.ConnectTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		dal = pgDAL
		pingers = append(pingers, pgDAL.Ping)
	default:
		dal = memory.New()
	}
	a.closers = append(a.closers, dal.Close)

	if cfg.Bootstrap.File != "" {
		f, err := bootstrap.Load(cfg.Bootstrap.File)
		if err != nil {
			return nil, err
		}
		if err := bootstrap.Apply(ctx, dal, f, password.Default); err != nil {
			return nil, err
		}
	}

	// Cache: sesiones, configuración y limiter de polling
	cc, err := cache.New(ctx, cache.Config{
		Driver:   cfg.Cache.Kind,
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.closers = append(a.closers, cc.Close)
	pingers = append(pingers, cc.Ping)

	var limiter rate.MultiLimiter
	if cfg.CIBA.SlowDown {
		if rc, ok := cc.(interface{ Redis() *redis.Client }); ok {
			limiter = rate.NewMultiRedisLimiter(rc.Redis(), cfg.Cache.Redis.Prefix+":rl:")
		} else {
			limiter = rate.NewMemoryLimiter()
		}
	}

	// Firma
	var key *jose.SigningKey
	if cfg.Signing.KeyFile != "" {
		key, err = jose.LoadES256File(cfg.Signing.KeyFile, cfg.Signing.KeyID)
	} else {
		log.Warn("signing.key_file not set; using an ephemeral key")
		key, err = jose.GenerateES256(cfg.Signing.KeyID)
	}
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	issuer := jwtx.NewIssuer(key)

	configs := configuration.NewService(dal, cc, config.Duration(cfg.Cache.TTL))
	authn := clientauth.New()
	minter := token.NewMinter(dal, issuer)
	ledger := grant.New(dal)
	responder := oauth.NewResponder(issuer)

	var mailer email.Sender
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			User:               cfg.SMTP.Username,
			Pass:               cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	}
	gateway := notification.New(notification.Config{
		Timeout:         config.Duration(cfg.CIBA.NotificationTimeout),
		MaxAttempts:     cfg.CIBA.MaxAttempts,
		InitialInterval: config.Duration(cfg.CIBA.InitialInterval),
	}, &http.Client{})

	od := oauth.Deps{
		DAL:       dal,
		Config:    configs,
		Sessions:  session.NewStore(cc),
		Ledger:    ledger,
		Minter:    minter,
		Responder: responder,
	}
	cd := ciba.Deps{
		DAL:           dal,
		Config:        configs,
		Authenticator: authn,
		Issuer:        issuer,
		Notifier:      ciba.NewNotificationService(dal, minter, ledger, gateway),
		Mailer:        mailer,
		NotifyDeny:    cfg.CIBA.NotifyDeny,
	}

	mcfg := httpx.MetricsConfig{Cache: cc}
	if pgDAL != nil {
		mcfg.Writer, mcfg.Reader = pgDAL.Writer(), pgDAL.Reader()
	}
	metricsHandler, err := httpx.RegisterMetrics(mcfg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.handler = httpx.NewRouter(httpx.Deps{
		OAuthRequest:   oauth.NewRequestHandler(od),
		OAuthAuthorize: oauth.NewAuthorizeHandler(od),
		OAuthDeny:      oauth.NewDenyHandler(od),
		Responder:      responder,
		Token: token.NewHandler(token.Deps{
			DAL:           dal,
			Config:        configs,
			Authenticator: authn,
			Minter:        minter,
			Ledger:        ledger,
			Limiter:       limiter,
		}),
		Backchannel:          ciba.NewRequestHandler(cd),
		BackchannelAuthorize: ciba.NewAuthorizeHandler(cd),
		BackchannelDeny:      ciba.NewDenyHandler(cd),
		Config:               configs,
		Keys:                 key,
		BaseURL:              cfg.Server.BaseURL,
		Metrics:              metricsHandler,
		Health: func(ctx context.Context) error {
			var errs []error
			for _, ping := range pingers {
				errs = append(errs, ping(ctx))
			}
			return errors.Join(errs...)
		},
	})
	return a, nil
}
