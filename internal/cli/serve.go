package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtlfinder/voyago/internal/config"
	"github.com/mtlfinder/voyago/internal/gateway"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sessions, cleanup, err := buildSessionStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			registry, err := buildToolRegistry(cfg)
			if err != nil {
				return err
			}

			runner, err := buildRunner(cfg, sessions, registry)
			if err != nil {
				return err
			}

			log.Info().
				Str("model", cfg.Model.Model).
				Int("tools", len(registry.Declarations())).
				Int("maxToolRounds", cfg.Chat.MaxToolRounds).
				Msg("assistant ready")

			srv := gateway.New(cfg.Server, runner, sessions, log)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind address")

	return cmd
}
