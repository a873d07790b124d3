// Command grantkeeper sirve el core de sesiones y scopes, aplica migraciones y
// opera la API de administración.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env es opcional; las variables del sistema tienen prioridad.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath = envOr("GRANTKEEPER_CONFIG", "")

	root := &cobra.Command{
		Use:           "grantkeeper",
		Short:         "Integridad de sesiones y autorización por scopes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Archivo YAML de configuración (env GRANTKEEPER_CONFIG)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))

	cl := newClient()
	root.AddCommand(newSessionsCmd(cl))
	root.AddCommand(newScopesCmd(cl))
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
