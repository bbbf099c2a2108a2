// Package ciba implementa Client Initiated Backchannel Authentication: el
// backchannel authentication endpoint, las decisiones del usuario y las
// notificaciones ping/push al client.
//
// Un CibaGrant pasa de pending a authorized o access_denied exactamente una
// vez; la expiración se calcula al leer. El polling del token endpoint vive en
// el paquete token.
package ciba

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/idpserver/internal/clientauth"
	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/email"
	jwtx "github.com/dropDatabas3/idpserver/internal/jwt"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// Deps son las dependencias de los handlers CIBA.
type Deps struct {
	DAL           store.DataAccessLayer
	Config        *configuration.Service
	Authenticator *clientauth.Authenticator
	Issuer        *jwtx.Issuer
	Notifier      *NotificationService
	// Mailer avisa al usuario final; nil lo desactiva.
	Mailer email.Sender
	// NotifyDeny envía la notificación de rechazo a clients ping y push.
	NotifyDeny bool
	Now        func() time.Time // Default: time.Now
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// backchannelClientError traduce los errores de autenticación del client al
// kind del backchannel endpoint.
func backchannelClientError(err error) error {
	var oe *oautherr.Error
	if !errors.As(err, &oe) {
		return err
	}
	switch oe.Kind {
	case oautherr.KindUnauthorized:
		return oautherr.Backchannel(oautherr.KindBackchannelUnauthorized, oe.Code, oe.Description).WithCause(oe.Err)
	case oautherr.KindTokenBadRequest, oautherr.KindBadRequest:
		return oautherr.Backchannel(oautherr.KindBackchannelBadRequest, oe.Code, oe.Description).WithCause(oe.Err)
	}
	return err
}

func logFailure(log *zap.Logger, err error, msg string) {
	oe := oautherr.From(err)
	if oe.Kind == oautherr.KindServerError {
		log.Error(msg, logger.Err(err))
		return
	}
	log.Debug(msg, logger.ErrorCode(oe.Code), logger.String("description", oe.Description))
}
