// Package memory implementa store.DataAccessLayer en memoria.
//
// Un unit of work toma el lock global durante toda su ejecución, así que las
// transacciones son serializables. Al comenzar se toma un snapshot de las
// tablas y se restaura si fn falla o entra en pánico.
package memory

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// ErrReadOnly se retorna al escribir dentro de un unit of work ReadOnly.
var ErrReadOnly = errors.New("memory: write in read-only unit of work")

type tables struct {
	authorizationRequests map[string]repository.AuthorizationRequest
	codeGrants            map[string]repository.AuthorizationCodeGrant
	backchannelRequests   map[string]repository.BackchannelAuthenticationRequest
	cibaGrants            map[string]repository.CibaGrant
	tokens                map[string]repository.OAuthToken
	granted               map[string]repository.AuthorizationGranted
	serverConfigs         map[string]repository.ServerConfiguration
	clientConfigs         map[string]repository.ClientConfiguration
	users                 map[string]repository.User
}

func newTables() tables {
	return tables{
		authorizationRequests: map[string]repository.AuthorizationRequest{},
		codeGrants:            map[string]repository.AuthorizationCodeGrant{},
		backchannelRequests:   map[string]repository.BackchannelAuthenticationRequest{},
		cibaGrants:            map[string]repository.CibaGrant{},
		tokens:                map[string]repository.OAuthToken{},
		granted:               map[string]repository.AuthorizationGranted{},
		serverConfigs:         map[string]repository.ServerConfiguration{},
		clientConfigs:         map[string]repository.ClientConfiguration{},
		users:                 map[string]repository.User{},
	}
}

// clone copia los mapas. Los valores se reemplazan, nunca se mutan en el lugar,
// así que una copia superficial alcanza.
func (t tables) clone() tables {
	return tables{
		authorizationRequests: maps.Clone(t.authorizationRequests),
		codeGrants:            maps.Clone(t.codeGrants),
		backchannelRequests:   maps.Clone(t.backchannelRequests),
		cibaGrants:            maps.Clone(t.cibaGrants),
		tokens:                maps.Clone(t.tokens),
		granted:               maps.Clone(t.granted),
		serverConfigs:         maps.Clone(t.serverConfigs),
		clientConfigs:         maps.Clone(t.clientConfigs),
		users:                 maps.Clone(t.users),
	}
}

// DAL es el DataAccessLayer en memoria.
type DAL struct {
	mu sync.Mutex
	t  tables
}

var _ store.DataAccessLayer = (*DAL)(nil)

func New() *DAL {
	return &DAL{t: newTables()}
}

type txKey struct{}

type tx struct {
	dal  *DAL
	mode store.Mode
}

// Do implementa store.UnitOfWork.
func (d *DAL) Do(ctx context.Context, mode store.Mode, fn func(ctx context.Context) error) (err error) {
	if store.IsActive(ctx) {
		return repository.ErrNestedTransaction
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.t.clone()
	committed := false
	defer func() {
		if !committed {
			d.t = snapshot
		}
	}()

	txCtx := context.WithValue(store.MarkActive(ctx), txKey{}, &tx{dal: d, mode: mode})
	if err = fn(txCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

// read ejecuta fn con el lock tomado, reutilizando el del unit of work si existe.
func (d *DAL) read(ctx context.Context, fn func(t *tables) error) error {
	if tx, ok := ctx.Value(txKey{}).(*tx); ok && tx.dal == d {
		return fn(&d.t)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&d.t)
}

func (d *DAL) write(ctx context.Context, fn func(t *tables) error) error {
	if tx, ok := ctx.Value(txKey{}).(*tx); ok && tx.dal == d {
		if tx.mode == store.ReadOnly {
			return ErrReadOnly
		}
		return fn(&d.t)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&d.t)
}

func (d *DAL) Close() error { return nil }

func (d *DAL) AuthorizationRequests() repository.AuthorizationRequestRepository {
	return authorizationRequestRepo{d}
}
func (d *DAL) CodeGrants() repository.AuthorizationCodeGrantRepository { return codeGrantRepo{d} }
func (d *DAL) BackchannelRequests() repository.BackchannelAuthenticationRequestRepository {
	return backchannelRequestRepo{d}
}
func (d *DAL) CibaGrants() repository.CibaGrantRepository         { return cibaGrantRepo{d} }
func (d *DAL) Tokens() repository.OAuthTokenRepository            { return tokenRepo{d} }
func (d *DAL) Granted() repository.AuthorizationGrantedRepository { return grantedRepo{d} }
func (d *DAL) ServerConfigurations() repository.ServerConfigurationRepository {
	return serverConfigRepo{d}
}
func (d *DAL) ClientConfigurations() repository.ClientConfigurationRepository {
	return clientConfigRepo{d}
}
func (d *DAL) Users() repository.UserRepository { return userRepo{d} }

func key(parts ...string) string { return strings.Join(parts, "\x00") }
