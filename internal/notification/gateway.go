// Package notification entrega notificaciones CIBA (ping, push y errores) al
// client_notification_endpoint del client, autenticadas con el
// client_notification_token como bearer.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dropDatabas3/idpserver/internal/observability/logger"
)

// Config es la política de entrega.
type Config struct {
	Timeout         time.Duration // por intento
	MaxAttempts     uint          // incluye el primer intento
	InitialInterval time.Duration
}

// DefaultConfig se usa para los campos en cero.
var DefaultConfig = Config{Timeout: 5 * time.Second, MaxAttempts: 3, InitialInterval: 200 * time.Millisecond}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultConfig.InitialInterval
	}
	return c
}

// PingPayload avisa que el resultado está listo para el polling.
type PingPayload struct {
	AuthReqID string `json:"auth_req_id"`
}

// PushPayload entrega los tokens directamente (CIBA §10.3.1).
type PushPayload struct {
	AuthReqID    string `json:"auth_req_id"`
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// ErrorPayload informa un error al client push (CIBA §12).
type ErrorPayload struct {
	AuthReqID        string `json:"auth_req_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// StatusError es una respuesta no 2xx del client.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("notification: client responded %d", e.StatusCode)
}

// Gateway envía un payload JSON al endpoint del client.
type Gateway interface {
	Send(ctx context.Context, endpoint, bearer string, payload any) error
}

// HTTPGateway implementa Gateway con reintentos exponenciales. Sólo se
// reintentan errores de red, 429 y 5xx.
type HTTPGateway struct {
	client *http.Client
	cfg    Config
}

var _ Gateway = (*HTTPGateway)(nil)

// New crea el gateway. client nil usa http.DefaultClient.
func New(cfg Config, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{client: client, cfg: cfg.withDefaults()}
}

func (g *HTTPGateway) Send(ctx context.Context, endpoint, bearer string, payload any) error {
	log := logger.From(ctx).With(logger.Layer("notification"), logger.Op("HTTPGateway.Send"),
		logger.String("endpoint", endpoint))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notification: marshal: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialInterval
	eb.MaxInterval = 20 * g.cfg.InitialInterval
	eb.Reset()

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, g.post(ctx, endpoint, bearer, body)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(g.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Debug("notification retry scheduled", logger.Err(err), logger.Duration(d))
		}),
	)
	if err != nil {
		log.Warn("notification failed", logger.Int("attempts", attempts), logger.Err(err))
		return err
	}
	log.Debug("notification delivered", logger.Int("attempts", attempts))
	return nil
}

func (g *HTTPGateway) post(ctx context.Context, endpoint, bearer string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("notification: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &StatusError{StatusCode: resp.StatusCode}
	default:
		return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode})
	}
}
