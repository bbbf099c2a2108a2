package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idpserver/internal/jose"
	"github.com/dropDatabas3/idpserver/internal/util/atomicwrite"
)

func newKeysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Gestión de la clave de firma"}

	var out, kid string
	var force bool
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Genera una clave ES256 en PEM e imprime su JWKS público",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out es requerido")
			}
			if !force && fileExists(out) {
				return fmt.Errorf("%s ya existe (usar --force para reemplazarla)", out)
			}
			key, err := jose.GenerateES256(kid)
			if err != nil {
				return err
			}
			pem, err := key.EncodePEM()
			if err != nil {
				return err
			}
			if err := atomicwrite.WriteFile(out, pem, 0o600); err != nil {
				return err
			}
			jwks, err := key.JWKSJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jwks))
			return nil
		},
	}
	gen.Flags().StringVar(&out, "out", "", "ruta del PEM a escribir")
	gen.Flags().StringVar(&kid, "kid", "", "key id (vacío usa el thumbprint)")
	gen.Flags().BoolVar(&force, "force", false, "reemplazar el archivo si existe")

	keys.AddCommand(gen)
	return keys
}
