// Package oautherr define la taxonomía de errores OAuth2/OIDC/CIBA y su
// traducción a status HTTP.
//
// Los verifiers y factories fallan con el primer chequeo que no pasa y devuelven
// un *Error etiquetado. Cualquier otro error que llegue al borde HTTP se
// traduce a server_error/500 con From.
package oautherr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/domain/types"
)

// Kind clasifica el error según cómo debe entregarse.
type Kind int

const (
	// KindServerError es un error no clasificado (500).
	KindServerError Kind = iota
	// KindRedirectable se entrega por redirect a una redirect_uri resoluble.
	KindRedirectable
	// KindBadRequest se entrega como body directo (no hay redirect_uri resoluble).
	KindBadRequest
	// KindTokenBadRequest es un error del token endpoint (400).
	KindTokenBadRequest
	// KindUnauthorized es invalid_client en el token endpoint (401).
	KindUnauthorized
	// KindConfigNotFound es configuración inexistente del tenant o client (400).
	KindConfigNotFound
	// KindBackchannelBadRequest es un error 400 del endpoint CIBA.
	KindBackchannelBadRequest
	// KindBackchannelUnauthorized es un error 401 del endpoint CIBA.
	KindBackchannelUnauthorized
	// KindBackchannelForbidden es un error 403 del endpoint CIBA.
	KindBackchannelForbidden
)

// Códigos de error OAuth2 / OIDC / CIBA.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidRequestObject    = "invalid_request_object"
	CodeRequestURINotSupported  = "request_uri_not_supported"
	CodeRequestNotSupported     = "request_not_supported"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeAccessDenied            = "access_denied"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeServerError             = "server_error"
	CodeLoginRequired           = "login_required"
	CodeInteractionRequired     = "interaction_required"
	CodeConsentRequired         = "consent_required"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeExpiredToken            = "expired_token"
	CodeAuthorizationPending    = "authorization_pending"
	CodeSlowDown                = "slow_down"
	CodeUnknownUserID           = "unknown_user_id"
	CodeExpiredLoginHintToken   = "expired_login_hint_token"
	CodeMissingUserCode         = "missing_user_code"
	CodeInvalidBindingMessage   = "invalid_binding_message"
	CodeInvalidAuthzDetails     = "invalid_authorization_details"
)

// RedirectTarget es lo necesario para entregar un error por redirect.
type RedirectTarget struct {
	RedirectURI  string
	ResponseMode types.ResponseMode
	ResponseType types.ResponseType
	State        string
	ClientID     string
	TenantID     string
	// Issuer firma la respuesta cuando el modo es JWT (JARM).
	Issuer string
}

// Error es un error OAuth etiquetado.
type Error struct {
	Kind        Kind
	Code        string
	Description string
	Target      RedirectTarget
	Err         error
}

// Error implementa la interfaz error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

// Unwrap permite acceder al error original.
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus devuelve el status a usar cuando el error se entrega como body.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindRedirectable, KindBadRequest, KindTokenBadRequest, KindConfigNotFound, KindBackchannelBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized, KindBackchannelUnauthorized:
		return http.StatusUnauthorized
	case KindBackchannelForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// IsRedirectable indica si el error puede entregarse por redirect.
func (e *Error) IsRedirectable() bool {
	return e.Kind == KindRedirectable && e.Target.RedirectURI != ""
}

// WithCause devuelve una COPIA con la causa agregada.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// Redirectable crea un error entregable por redirect.
func Redirectable(code, description string, target RedirectTarget) *Error {
	return &Error{Kind: KindRedirectable, Code: code, Description: description, Target: target}
}

// BadRequest crea un error no redirigible.
func BadRequest(code, description string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Description: description}
}

// TokenBadRequest crea un error del token endpoint (400).
func TokenBadRequest(code, description string) *Error {
	return &Error{Kind: KindTokenBadRequest, Code: code, Description: description}
}

// Unauthorized crea un invalid_client (401).
func Unauthorized(description string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeInvalidClient, Description: description}
}

// ConfigNotFound envuelve un error de configuración inexistente (400).
func ConfigNotFound(err error) *Error {
	return &Error{Kind: KindConfigNotFound, Code: CodeInvalidRequest, Description: "configuration not found", Err: err}
}

// Backchannel crea un error del endpoint CIBA. kind debe ser uno de los KindBackchannel*.
func Backchannel(kind Kind, code, description string) *Error {
	return &Error{Kind: kind, Code: code, Description: description}
}

// ServerError envuelve un error no clasificado (500).
func ServerError(err error) *Error {
	return &Error{Kind: KindServerError, Code: CodeServerError, Description: "unexpected error", Err: err}
}

// From convierte cualquier error a *Error.
// Configuración inexistente se mapea a 400; lo no clasificado a server_error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	if repository.IsConfigurationNotFound(err) {
		return ConfigNotFound(err)
	}
	return ServerError(err)
}

// Redirectify convierte un BadRequest en redirigible cuando hay target resoluble.
func Redirectify(err error, target RedirectTarget) error {
	var oe *Error
	if !errors.As(err, &oe) || target.RedirectURI == "" {
		return err
	}
	if oe.Kind != KindBadRequest && oe.Kind != KindConfigNotFound {
		return err
	}
	out := *oe
	out.Kind = KindRedirectable
	out.Target = target
	return &out
}
