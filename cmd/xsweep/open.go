package main

import (
	"fmt"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xsweep/internal/config"
)

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|data>",
		Short:     "Open the config file or the data directory",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := openPath(args[0])
			if err != nil {
				return err
			}
			return browser.OpenFile(path)
		},
	}
}

func openPath(target string) (string, error) {
	switch target {
	case "config":
		return config.ConfigPath()
	case "data":
		return config.DataDir()
	default:
		return "", fmt.Errorf("unknown target %q", target)
	}
}
