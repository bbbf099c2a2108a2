// Package pg implementa store.DataAccessLayer sobre PostgreSQL con pgxpool.
//
// Cada entidad se persiste con sus columnas de búsqueda (tenant, ids, estado,
// expiración) y el resto como JSONB en la columna payload.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
	"github.com/dropDatabas3/idpserver/internal/observability/logger"
	"github.com/dropDatabas3/idpserver/internal/store"
)

// Config configura los pools writer y reader.
type Config struct {
	// WriterDSN es el DSN del primario (requerido).
	WriterDSN string
	// ReaderDSN es el DSN de la réplica; vacío usa el writer.
	ReaderDSN string
	// MaxConns por pool (0 = default de pgx).
	MaxConns int32
	// ConnectTimeout para el ping inicial.
	ConnectTimeout time.Duration
}

// PgExecQuerier abstrae pool y transacción.
type PgExecQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DAL es el DataAccessLayer de PostgreSQL.
type DAL struct {
	writer *pgxpool.Pool
	reader *pgxpool.Pool

	authorizationRequests *authorizationRequestRepo
	codeGrants            *codeGrantRepo
	backchannelRequests   *backchannelRequestRepo
	cibaGrants            *cibaGrantRepo
	tokens                *tokenRepo
	granted               *grantedRepo
	serverConfigs         *serverConfigRepo
	clientConfigs         *clientConfigRepo
	users                 *userRepo
}

var _ store.DataAccessLayer = (*DAL)(nil)

// Open conecta ambos pools y verifica conectividad.
func Open(ctx context.Context, cfg Config) (*DAL, error) {
	if cfg.WriterDSN == "" {
		return nil, fmt.Errorf("pg: writer dsn is required")
	}
	writer, err := newPool(ctx, cfg.WriterDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: writer pool: %w", err)
	}
	reader := writer
	if cfg.ReaderDSN != "" && cfg.ReaderDSN != cfg.WriterDSN {
		reader, err = newPool(ctx, cfg.ReaderDSN, cfg)
		if err != nil {
			writer.Close()
			return nil, fmt.Errorf("pg: reader pool: %w", err)
		}
	}
	return New(writer, reader), nil
}

// New construye el DAL sobre pools ya abiertos.
func New(writer, reader *pgxpool.Pool) *DAL {
	if reader == nil {
		reader = writer
	}
	d := &DAL{writer: writer, reader: reader}
	d.authorizationRequests = &authorizationRequestRepo{d}
	d.codeGrants = &codeGrantRepo{d}
	d.backchannelRequests = &backchannelRequestRepo{d}
	d.cibaGrants = &cibaGrantRepo{d}
	d.tokens = &tokenRepo{d}
	d.granted = &grantedRepo{d}
	d.serverConfigs = &serverConfigRepo{d}
	d.clientConfigs = &clientConfigRepo{d}
	d.users = &userRepo{d}
	return d
}

func newPool(ctx context.Context, dsn string, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Writer expone el pool writer (migraciones).
func (d *DAL) Writer() *pgxpool.Pool { return d.writer }

// Reader expone el pool de lectura; es el writer si no hay réplica.
func (d *DAL) Reader() *pgxpool.Pool { return d.reader }

// Ping verifica ambos pools.
func (d *DAL) Ping(ctx context.Context) error {
	if err := d.writer.Ping(ctx); err != nil {
		return err
	}
	if d.reader != d.writer {
		return d.reader.Ping(ctx)
	}
	return nil
}

// Close cierra los pools.
func (d *DAL) Close() error {
	if d.reader != d.writer {
		d.reader.Close()
	}
	d.writer.Close()
	return nil
}

type txKey struct{}

// Do implementa store.UnitOfWork.
func (d *DAL) Do(ctx context.Context, mode store.Mode, fn func(ctx context.Context) error) (err error) {
	if store.IsActive(ctx) {
		return repository.ErrNestedTransaction
	}
	pool := d.writer
	opts := pgx.TxOptions{}
	if mode == store.ReadOnly {
		pool = d.reader
		opts.AccessMode = pgx.ReadOnly
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.From(ctx).Warn("rollback failed", logger.Layer("store"), logger.Err(rbErr))
			}
		}
	}()

	txCtx := context.WithValue(store.MarkActive(ctx), txKey{}, tx)
	if err = fn(txCtx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

// q devuelve la transacción del contexto, o el writer fuera de un unit of work.
func (d *DAL) q(ctx context.Context) PgExecQuerier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.writer
}

func (d *DAL) AuthorizationRequests() repository.AuthorizationRequestRepository {
	return d.authorizationRequests
}
func (d *DAL) CodeGrants() repository.AuthorizationCodeGrantRepository { return d.codeGrants }
func (d *DAL) BackchannelRequests() repository.BackchannelAuthenticationRequestRepository {
	return d.backchannelRequests
}
func (d *DAL) CibaGrants() repository.CibaGrantRepository         { return d.cibaGrants }
func (d *DAL) Tokens() repository.OAuthTokenRepository            { return d.tokens }
func (d *DAL) Granted() repository.AuthorizationGrantedRepository { return d.granted }
func (d *DAL) ServerConfigurations() repository.ServerConfigurationRepository {
	return d.serverConfigs
}
func (d *DAL) ClientConfigurations() repository.ClientConfigurationRepository {
	return d.clientConfigs
}
func (d *DAL) Users() repository.UserRepository { return d.users }

// mapErr traduce errores de pgx a errores de dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}
