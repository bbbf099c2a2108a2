package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/idpserver/internal/domain/repository"
)

// queryPayload ejecuta una query que devuelve una única columna payload JSONB.
// Retorna repository.ErrNotFound si no hay filas.
func queryPayload[T any](ctx context.Context, q PgExecQuerier, sql string, args ...any) (T, error) {
	var out T
	var raw []byte
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return out, mapErr(err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("pg: decode payload: %w", err)
	}
	return out, nil
}

// findPayload es queryPayload que devuelve el valor cero cuando no hay filas.
func findPayload[T any](ctx context.Context, q PgExecQuerier, sql string, args ...any) (T, error) {
	out, err := queryPayload[T](ctx, q, sql, args...)
	if errors.Is(err, repository.ErrNotFound) {
		var zero T
		return zero, nil
	}
	return out, err
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pg: encode payload: %w", err)
	}
	return b, nil
}
