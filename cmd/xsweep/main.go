// Command xsweep cleans up an X account from the terminal: run, login, history
// and a headless serve mode for the control API and schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// .env may point XSWEEP_CONFIG somewhere else
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "xsweep:", err)
		os.Exit(1)
	}
}
