package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dropDatabas3/idpserver/internal/observability/logger"
)

// ServerConfig configura el listener HTTP.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CertFile/KeyFile habilitan TLS. ClientCAFile además pide certificado de
	// cliente (mTLS) sin exigirlo: la verificación la hace clientauth.
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// NewServer construye el *http.Server con timeouts y TLS opcional.
func NewServer(cfg ServerConfig, h http.Handler) (*http.Server, error) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	if cfg.ClientCAFile == "" {
		return srv, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("http: read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("http: client CA file has no certificates")
	}
	srv.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientCAs:  pool,
		// self_signed_tls_client_auth registra certificados fuera de la CA.
		ClientAuth: tls.RequestClientCert,
	}
	return srv, nil
}

// Serve atiende hasta que ctx se cancela y luego apaga con gracia.
func Serve(ctx context.Context, srv *http.Server, cfg ServerConfig) error {
	log := logger.L().With(logger.Component("http"), logger.String("addr", srv.Addr))
	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.CertFile != "" {
			log.Info("listening (tls)")
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			log.Info("listening")
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	return <-errCh
}
