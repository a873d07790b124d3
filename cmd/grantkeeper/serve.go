package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/grantkeeper/internal/app"
	"github.com/dropDatabas3/grantkeeper/internal/config"
	httpx "github.com/dropDatabas3/grantkeeper/internal/http"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/store"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "grantkeeper",
	})
	return cfg, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP (admin API, hooks, userinfo, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.L().With(logger.Layer("cmd"), logger.Op("serve"))

			if cfg.Flags.Migrate && cfg.Storage.Driver != "memory" {
				log.Info("applying migrations", logger.String("driver", cfg.Storage.Driver))
				if err := store.Migrate(cfg.Storage.Driver, cfg.Storage.DSN, store.MigrateUp); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("wiring: %w", err)
			}
			defer func() {
				if err := c.Close(); err != nil {
					log.Warn("close failed", logger.Err(err))
				}
			}()

			if cfg.Server.AdminAPIKey == "" {
				log.Warn("ADMIN_API_KEY vacío: /v1 responde 403")
			}

			return httpx.Start(ctx, httpx.ServerConfig{
				Addr:            cfg.Server.Addr,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, c.Handler)
		},
	}
}
