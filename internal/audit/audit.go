// Package audit registra decisiones del usuario final y emisiones de tokens
// en un logger dedicado ("audit"), separado del log operativo.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/idpserver/internal/observability/logger"
)

// Eventos auditados.
const (
	EventBackchannelAuthorized = "backchannel.authorized"
	EventBackchannelDenied     = "backchannel.denied"
	EventTokenIssued           = "token.issued"
)

// Log escribe un evento. Hereda request_id y tenant del logger del contexto.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	l := logger.From(ctx).Named("audit")
	l.Info(event, append(fields,
		logger.String("event", event),
		logger.String("ts", time.Now().UTC().Format(time.RFC3339Nano)))...)
}
