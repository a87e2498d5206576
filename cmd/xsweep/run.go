package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xsweep/internal/app"
	"github.com/ibeckermayer/xsweep/internal/types"
)

type runFlags struct {
	mode        string
	undoReposts bool
	batch       int
	pause       int
}

// apply overrides base with the flags the user actually set
func (f runFlags) apply(cmd *cobra.Command, base types.RunConfig) (types.RunConfig, error) {
	cfg := base
	if cmd.Flags().Changed("mode") {
		mode, err := types.ParseMode(f.mode)
		if err != nil {
			return types.RunConfig{}, err
		}
		cfg.Mode = mode
	}
	if cmd.Flags().Changed("undo-reposts") {
		cfg.AlsoUndoReposts = f.undoReposts
	}
	if cmd.Flags().Changed("batch") {
		cfg.BatchSize = f.batch
	}
	if cmd.Flags().Changed("pause") {
		cfg.PauseMs = f.pause
	}
	cfg = cfg.Normalize()
	return cfg, cfg.Validate()
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the feed and clean it until interrupted",
		Long: `Opens x.com in Chrome on the stored session and works down the page,
deleting your posts (optionally undoing reposts first) or unliking liked posts.
Stop with Ctrl-C. Unset flags take the [run] defaults from config.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App, env *app.Env) error {
				cfg, err := f.apply(cmd, env.Config.Run)
				if err != nil {
					return err
				}
				started := time.Now()
				if err := a.RunUntilDone(cmd.Context(), cfg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %d items in %s\n",
					a.Status().Total, time.Since(started).Round(time.Second))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", string(types.ModeDelete), "delete or unlike")
	cmd.Flags().BoolVar(&f.undoReposts, "undo-reposts", false, "undo reposts before trying to delete (delete mode only)")
	cmd.Flags().IntVar(&f.batch, "batch", types.DefaultBatchSize, "successful actions per batch before cooling down")
	cmd.Flags().IntVar(&f.pause, "pause", types.DefaultPauseMs, "cooldown between batches in milliseconds")
	return cmd
}
