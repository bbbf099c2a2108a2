// Package oauth orquesta el authorization endpoint: registrar un intento de
// autorización, autorizarlo con el usuario autenticado o denegarlo.
//
// Cada método público ejecuta exactamente un unit of work.
package oauth

import (
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/idpserver/internal/configuration"
	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/grant"
	"github.com/dropDatabas3/idpserver/internal/oautherr"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
	"github.com/dropDatabas3/idpserver/internal/token"
)

// Deps son las dependencias compartidas por los handlers del paquete.
type Deps struct {
	DAL       store.DataAccessLayer
	Config    *configuration.Service
	Sessions  repository.SessionRepository
	Ledger    *grant.Ledger
	Minter    *token.Minter
	Responder *Responder
	Now       func() time.Time // Default: time.Now
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// logFailure loguea los errores de protocolo en Debug y los no clasificados en Error.
func logFailure(log *zap.Logger, err error, msg string) {
	oe := oautherr.From(err)
	if oe.Kind == oautherr.KindServerError {
		log.Error(msg, logger.Err(err))
		return
	}
	log.Debug(msg, logger.ErrorCode(oe.Code), logger.String("description", oe.Description))
}
