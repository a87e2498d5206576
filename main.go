package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getlantern/systray"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/app"
	"github.com/ibeckermayer/xsweep/internal/tray"
)

func main() {
	// .env may point XSWEEP_CONFIG somewhere else
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "xsweep:", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	a := app.New(ctx, env.Config, env.Cookies, env.History, logger)

	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := a.Serve(ctx); err != nil {
			logger.Error("Background services failed", zap.Error(err))
		}
	}()

	logger.Info("xsweep starting...")

	// Run systray (blocks until Quit)
	systray.Run(tray.OnReady(ctx, a, logger), tray.OnExit(stop, logger))

	stop()
	<-served
}
