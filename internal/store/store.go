// Package store define el unit of work y el DataAccessLayer compartido por los
// adapters de persistencia (pg, memory).
//
// Cada handler de nivel superior ejecuta exactamente un unit of work:
//
//	err := dal.Do(ctx, store.ReadWrite, func(ctx context.Context) error {
//	    // todas las llamadas a repositorios reciben este ctx
//	})
//
// La transacción activa viaja en el contexto; los repositorios la toman de ahí.
// Abrir un unit of work sobre un contexto que ya tiene uno es un error de
// programación y falla con repository.ErrNestedTransaction.
package store

import (
	"context"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

// Mode selecciona el endpoint de base de datos del unit of work.
type Mode int

const (
	// ReadWrite usa el pool writer.
	ReadWrite Mode = iota
	// ReadOnly puede usar una réplica (pool reader).
	ReadOnly
)

// String implementa fmt.Stringer.
func (m Mode) String() string {
	if m == ReadOnly {
		return "read_only"
	}
	return "read_write"
}

// UnitOfWork ejecuta fn dentro de una transacción: commit si fn retorna nil,
// rollback en cualquier otro caso (incluido panic). La conexión se libera en
// todos los caminos de salida.
type UnitOfWork interface {
	Do(ctx context.Context, mode Mode, fn func(ctx context.Context) error) error
}

// DataAccessLayer agrupa el unit of work y todos los repositorios del core.
type DataAccessLayer interface {
	UnitOfWork

	AuthorizationRequests() repository.AuthorizationRequestRepository
	CodeGrants() repository.AuthorizationCodeGrantRepository
	BackchannelRequests() repository.BackchannelAuthenticationRequestRepository
	CibaGrants() repository.CibaGrantRepository
	Tokens() repository.OAuthTokenRepository
	Granted() repository.AuthorizationGrantedRepository
	ServerConfigurations() repository.ServerConfigurationRepository
	ClientConfigurations() repository.ClientConfigurationRepository
	Users() repository.UserRepository

	// Close libera pools y conexiones.
	Close() error
}

type activeKey struct{}

// MarkActive marca el contexto como perteneciente a un unit of work.
// Los adapters lo usan para detectar transacciones anidadas.
func MarkActive(ctx context.Context) context.Context {
	return context.WithValue(ctx, activeKey{}, true)
}

// IsActive indica si el contexto ya pertenece a un unit of work.
func IsActive(ctx context.Context) bool {
	v, _ := ctx.Value(activeKey{}).(bool)
	return v
}
