package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/app"
)

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the cleanup schedule without the tray",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := app.Setup(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			env.Config.Control.Enabled = true
			if listen != "" {
				env.Config.Control.Listen = listen
			}
			a := app.New(ctx, env.Config, env.Cookies, env.History, env.Logger)
			env.Logger.Info("Serving until interrupted",
				zap.String("listen", env.Config.Control.Listen),
				zap.Bool("schedule", env.Config.Schedule.Enabled),
			)
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "control API address (default from config)")
	return cmd
}
