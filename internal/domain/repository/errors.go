package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (duplicado, o una transición condicional perdida).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigurationNotFound indica que no existe configuración de servidor o client
	// para el tenant. Es un error del llamador, nunca un 5xx.
	ErrConfigurationNotFound = errors.New("configuration not found")

	// ErrNestedTransaction indica que se intentó abrir una transacción dentro de otra.
	ErrNestedTransaction = errors.New("nested transaction not supported")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConfigurationNotFound verifica si el error es ErrConfigurationNotFound.
func IsConfigurationNotFound(err error) bool {
	return errors.Is(err, ErrConfigurationNotFound)
}
