package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtlfinder/voyago/internal/agent"
	"github.com/mtlfinder/voyago/internal/config"
	"github.com/mtlfinder/voyago/internal/domain"
	"github.com/mtlfinder/voyago/internal/session"
)

func newAskCmd() *cobra.Command {
	var (
		lat float64
		lon float64
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the assistant a single question",
		Long:  "Runs one conversation turn against a throwaway in-memory session and prints the answer.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			registry, err := buildToolRegistry(cfg)
			if err != nil {
				return err
			}

			sessions := session.NewMemoryStore()
			runner, err := buildRunner(cfg, sessions, registry)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			sess, err := sessions.Create(ctx)
			if err != nil {
				return err
			}

			req := agent.TurnRequest{
				SessionID: sess.ID,
				Content:   strings.Join(args, " "),
			}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				req.Location = &domain.Location{Latitude: lat, Longitude: lon}
			}

			result, err := runner.Run(ctx, req)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Response)
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "your current latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "your current longitude")

	return cmd
}
