package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/store"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica o revierte las migraciones del store",
	}
	for _, dir := range []string{store.MigrateUp, store.MigrateDown} {
		direction := dir
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: "migrate " + direction,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				if cfg.Storage.Driver == "memory" {
					return fmt.Errorf("storage.driver memory no tiene migraciones")
				}
				if err := store.Migrate(cfg.Storage.Driver, cfg.Storage.DSN, direction); err != nil {
					return err
				}
				logger.L().Info("migrations applied",
					logger.Layer("cmd"),
					logger.String("driver", cfg.Storage.Driver),
					logger.String("direction", direction),
				)
				return nil
			},
		})
	}
	return cmd
}
