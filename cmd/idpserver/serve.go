package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/idpserver/internal/config"
	httpx "github.com/dropDatabas3/idpserver/internal/http"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/observability/tracing"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Env:         cfg.Logging.Env,
		Level:       cfg.Logging.Level,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("serve")

	shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	scfg := httpx.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
		CertFile:     cfg.Server.TLS.CertFile,
		KeyFile:      cfg.Server.TLS.KeyFile,
		ClientCAFile: cfg.Server.TLS.ClientCAFile,
	}
	srv, err := httpx.NewServer(scfg, a.handler)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpx.Serve(gctx, srv, scfg) })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(sctx)
	})

	log.Info("idpserver started",
		logger.String("addr", cfg.Server.Addr),
		logger.String("store", cfg.Store.Driver),
		logger.String("cache", cfg.Cache.Kind))
	if err := g.Wait(); err != nil {
		log.Error("idpserver stopped with error", logger.Err(err))
		return err
	}
	log.Info("idpserver stopped")
	return nil
}
