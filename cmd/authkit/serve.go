package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/panyam/authkit/config"
	"github.com/panyam/authkit/logging"
	"github.com/panyam/authkit/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, g.envFiles...)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}

			logging.Init(logging.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: "authkit"})
			defer logging.Sync()
			log := logging.Named("serve")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			app, err := server.NewApp(ctx, cfg, reg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(context.Background()); err != nil {
					log.Warn("close", logging.Err(err))
				}
			}()

			log.Info("starting",
				logging.String("env", cfg.Env),
				logging.String("addr", cfg.Addr()),
				logging.String("api_prefix", cfg.APIPrefix),
				logging.String("storage", cfg.Storage.Driver))
			return app.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override PORT")
	return cmd
}
