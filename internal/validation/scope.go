// Package validation agrupa reglas sintácticas compartidas por la carga de
// configuración.
package validation

import (
	"fmt"
	"regexp"
)

// Un nombre de scope va en minúsculas, empieza y termina en [a-z0-9] y admite
// ":_.-" en el medio, hasta 64 caracteres. Ej: openid, fapi:read, payments.write.
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidScopeName indica si name cumple el patrón.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// ValidateScopes falla con el primer nombre inválido.
func ValidateScopes(names []string) error {
	for _, n := range names {
		if !ValidScopeName(n) {
			return fmt.Errorf("invalid scope name %q", n)
		}
	}
	return nil
}
