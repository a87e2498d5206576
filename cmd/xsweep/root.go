package main

import (
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xsweep/internal/app"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "xsweep",
		Short:         "Bulk delete, un-repost and unlike on X from a real browser.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newHistoryCmd(),
		newOpenCmd(),
		newServeCmd(),
		newBotTestCmd(),
	)
	return root
}

// withApp runs fn against a fully set up App and tears it down afterwards
func withApp(cmd *cobra.Command, fn func(a *app.App, env *app.Env) error) error {
	ctx := cmd.Context()
	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	a := app.New(ctx, env.Config, env.Cookies, env.History, env.Logger)
	return fn(a, env)
}
