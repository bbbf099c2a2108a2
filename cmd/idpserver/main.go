// Command idpserver es el authorization server multi-tenant (OAuth 2.0, OIDC,
// FAPI y CIBA).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idpserver/internal/config"
)

// Seteadas por -ldflags en el build.
var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func (f *rootFlags) load() (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFiles...); err != nil {
		return nil, err
	}
	return config.Load(f.configPath)
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "idpserver",
		Short:         "Authorization server OAuth 2.0 / OIDC / FAPI / CIBA",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", envOr("IDP_CONFIG", ""), "ruta a config.yaml (env IDP_CONFIG)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "archivos .env a cargar (los ausentes se ignoran)")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newKeysCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "idpserver %s (%s)\n", version, commit)
		},
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
