// Package grant mantiene el ledger AuthorizationGranted: los derechos
// consentidos por (tenant, client, user) acumulados entre sesiones.
package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// Ledger registra o fusiona grants. Debe llamarse dentro de un unit of work
// ReadWrite: la lectura bloquea la fila hasta el commit.
type Ledger struct {
	dal store.DataAccessLayer
	now func() time.Time
}

func New(dal store.DataAccessLayer) *Ledger {
	return &Ledger{dal: dal, now: time.Now}
}

// Find devuelve la entrada del ledger (valor cero si no existe).
func (l *Ledger) Find(ctx context.Context, tenantID, clientID, userSub string) (repository.AuthorizationGranted, error) {
	return l.dal.Granted().Find(ctx, tenantID, clientID, userSub)
}

// Merge crea la entrada o fusiona el grant sobre la existente. La fusión es
// monótona: scopes, claims y authorization_details nunca se pierden.
// Un grant sin usuario (client_credentials) no se registra.
func (l *Ledger) Merge(ctx context.Context, g repository.AuthorizationGrant) (repository.AuthorizationGranted, error) {
	if !g.HasUser() {
		return repository.AuthorizationGranted{}, nil
	}
	log := logger.From(ctx).With(logger.Layer("grant"), logger.Op("Ledger.Merge"),
		logger.TenantID(g.TenantID), logger.ClientID(g.ClientID), logger.UserID(g.User.Sub))
	now := l.now().UTC()
	repo := l.dal.Granted()

	// Dos intentos: si otro unit of work creó la fila entre el Find y el
	// Register, el segundo intento la encuentra y fusiona.
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := repo.FindForUpdate(ctx, g.TenantID, g.ClientID, g.User.Sub)
		if err != nil {
			return repository.AuthorizationGranted{}, fmt.Errorf("grant: find: %w", err)
		}
		if existing.Exists() {
			merged := existing.Merge(g, now)
			if err := repo.Update(ctx, g.TenantID, merged); err != nil {
				return repository.AuthorizationGranted{}, fmt.Errorf("grant: update: %w", err)
			}
			log.Debug("authorization granted merged", logger.String("scopes", merged.Grant.Scopes.String()))
			return merged, nil
		}

		created := repository.NewAuthorizationGranted(uuid.NewString(), g, now)
		err = repo.Register(ctx, g.TenantID, created)
		if err == nil {
			log.Debug("authorization granted created")
			return created, nil
		}
		if !repository.IsConflict(err) {
			return repository.AuthorizationGranted{}, fmt.Errorf("grant: register: %w", err)
		}
		log.Debug("authorization granted created concurrently, retrying as merge")
	}
	return repository.AuthorizationGranted{}, fmt.Errorf("grant: %w", repository.ErrConflict)
}
