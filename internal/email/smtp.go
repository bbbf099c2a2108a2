// Package email envía al usuario final el aviso de una autenticación CIBA
// pendiente por SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/util"
)

// Message es un email multipart (texto + HTML).
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender envía un Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig es la configuración del relay.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// SMTPSender implementa Sender con go-mail.
type SMTPSender struct {
	cfg SMTPConfig
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	log := logger.From(ctx).With(logger.Layer("email"), logger.Op("SMTPSender.Send"),
		logger.String("host", s.cfg.Host), logger.Int("port", s.cfg.Port), logger.String("to", util.MaskEmail(msg.To)))

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	// multipart/alternative: texto primero, HTML como alternativa
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host, InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	if err := d.DialAndSend(m); err != nil {
		diag := Diagnose(err)
		log.Warn("smtp send failed", logger.String("smtp_code", diag.Code), logger.Bool("temporary", diag.Temporary), logger.Err(err))
		return fmt.Errorf("email: smtp send: %w", err)
	}
	log.Debug("email sent")
	return nil
}
