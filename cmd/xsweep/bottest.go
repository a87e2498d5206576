package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/xsweep/internal/browser"
	"github.com/ibeckermayer/xsweep/internal/config"
)

func newBotTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com with the run browser options to audit the fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.Default()
			}
			bc := cfg.Browser
			bc.Headless = false // so you can see it

			allocCtx, cancel := chromedp.NewExecAllocator(cmd.Context(), browser.Options(bc)...)
			defer cancel()

			ctx, cancel := chromedp.NewContext(allocCtx)
			defer cancel()

			err = chromedp.Run(ctx,
				chromedp.Navigate("https://bot.sannysoft.com"),
				chromedp.WaitVisible("body", chromedp.ByQuery),
			)
			if err != nil {
				return fmt.Errorf("failed to navigate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
			waitForEnter(ctx)
			return nil
		},
	}
}

func waitForEnter(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		fmt.Fscanln(os.Stdin)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
