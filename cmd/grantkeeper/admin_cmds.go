package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var stdout = os.Stdout

func addClientFlags(cmd *cobra.Command, cl *client) {
	cmd.PersistentFlags().StringVar(&cl.BaseURL, "admin-api-url", cl.BaseURL, "URL base del Admin API (env GRANTKEEPER_ADMIN_URL)")
	cmd.PersistentFlags().StringVar(&cl.APIKey, "admin-api-key", cl.APIKey, "API key del Admin API (env GRANTKEEPER_ADMIN_KEY)")
	cmd.PersistentFlags().StringVar(&cl.OutFormat, "out", cl.OutFormat, "Formato de salida: json|text")
}

// ─── sessions ───

func newSessionsCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Sesiones de un usuario (vía /v1/admin)"}
	addClientFlags(cmd, cl)

	var user string
	requireUser := func() error {
		if user == "" {
			return fmt.Errorf("--user es requerido")
		}
		return nil
	}
	cmd.PersistentFlags().StringVar(&user, "user", "", "ID del usuario")

	list := &cobra.Command{
		Use:   "list",
		Short: "Listar sesiones (activas, expiradas y revocadas)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			return cl.call("list", http.MethodGet, "/v1/admin/users/"+seg(user)+"/sessions", nil)
		},
	}

	var reason string
	revoke := &cobra.Command{
		Use:   "revoke <authorization-id>",
		Short: "Revocar una sesión y su cadena de tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			path := "/v1/admin/users/" + seg(user) + "/sessions/" + seg(args[0])
			if reason == "" {
				return cl.call("revoke", http.MethodDelete, path, nil)
			}
			return cl.call("revoke", http.MethodPost, path+"/revoke", map[string]string{"reason": reason})
		},
	}
	revoke.Flags().StringVar(&reason, "reason", "", "Motivo (vacío = user_revoked)")

	var allReason string
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revocar todas las sesiones del usuario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			return cl.call("revoke-all", http.MethodPost, "/v1/admin/users/"+seg(user)+"/sessions/revoke-all",
				map[string]string{"reason": allReason})
		},
	}
	revokeAll.Flags().StringVar(&allReason, "reason", "", "Motivo (vacío = logout_all)")

	cmd.AddCommand(list, revoke, revokeAll)
	return cmd
}

// ─── scopes ───

func newScopesCmd(cl *client) *cobra.Command {
	cmd := &cobra.Command{Use: "scopes", Short: "Required scopes por client (vía /v1/admin)"}
	addClientFlags(cmd, cl)

	var clientID string
	cmd.PersistentFlags().StringVar(&clientID, "client", "", "ID del client")
	base := func() (string, error) {
		if clientID == "" {
			return "", fmt.Errorf("--client es requerido")
		}
		return "/v1/admin/clients/" + seg(clientID) + "/required-scopes", nil
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Ver los required scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := base()
			if err != nil {
				return err
			}
			return cl.call("get", http.MethodGet, p, nil)
		},
	}

	set := &cobra.Command{
		Use:   "set [scope...]",
		Short: "Reemplazar el set completo (sin argumentos lo vacía)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := base()
			if err != nil {
				return err
			}
			var names []string
			for _, a := range args {
				names = append(names, strings.Fields(strings.ReplaceAll(a, ",", " "))...)
			}
			if names == nil {
				names = []string{}
			}
			return cl.call("set", http.MethodPut, p, map[string]any{"scopes": names})
		},
	}

	check := &cobra.Command{
		Use:   "check <scope>",
		Short: "Indicar si el scope es requerido",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := base()
			if err != nil {
				return err
			}
			return cl.call("check", http.MethodGet, p+"/"+seg(args[0]), nil)
		},
	}

	orphans := &cobra.Command{
		Use:   "orphans",
		Short: "Required scopes que el client ya no tiene permitidos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := base()
			if err != nil {
				return err
			}
			return cl.call("orphans", http.MethodGet, p+"/orphans", nil)
		},
	}

	cmd.AddCommand(get, set, check, orphans)
	return cmd
}
