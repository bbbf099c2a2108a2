package logger

import (
	"time"

	tokens "github.com/dropDatabas3/idpserver/internal/security/token"
	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Dominio

func TenantID(v string) zap.Field  { return zap.String("tenant_id", v) }
func ClientID(v string) zap.Field  { return zap.String("client_id", v) }
func UserID(v string) zap.Field    { return zap.String("user_sub", v) }
func AuthReqID(v string) zap.Field { return zap.String("auth_req_id", v) }
func GrantType(v string) zap.Field { return zap.String("grant_type", v) }
func Profile(v string) zap.Field   { return zap.String("profile", v) }

// AuthorizationRequestID crea un campo para el ID del authorization request.
func AuthorizationRequestID(v string) zap.Field { return zap.String("authorization_request_id", v) }

// ErrorCode crea un campo para el código OAuth devuelto al client.
func ErrorCode(v string) zap.Field { return zap.String("error_code", v) }

// Fingerprint loguea un prefijo del hash de un secreto (code, token) en lugar del valor.
func Fingerprint(key, secret string) zap.Field {
	h := tokens.SHA256Hex(secret)
	if len(h) > 12 {
		h = h[:12]
	}
	return zap.String(key, h)
}

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Genéricos

func Any(key string, v any) zap.Field     { return zap.Any(key, v) }
func String(key, v string) zap.Field      { return zap.String(key, v) }
func Int(key string, v int) zap.Field     { return zap.Int(key, v) }
func Int64(key string, v int64) zap.Field { return zap.Int64(key, v) }
func Bool(key string, v bool) zap.Field   { return zap.Bool(key, v) }
