package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/auth"
	"github.com/ibeckermayer/xsweep/internal/config"
	"github.com/ibeckermayer/xsweep/internal/observability"
	"github.com/ibeckermayer/xsweep/internal/store"
)

// Env is the process setup shared by the tray and the CLI
type Env struct {
	Config  *config.Config
	Logger  *zap.Logger
	Cookies *auth.CookieStore
	History *store.Store // nil when the database could not be opened

	closers []func()
}

// Setup loads (or creates) the config, builds the logger and opens the cookie
// and history stores. A broken history database is logged and skipped.
func Setup(ctx context.Context) (*Env, error) {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, flush, err := observability.NewConsole(cfg.Logging)
	if err != nil {
		return nil, err
	}
	env := &Env{Config: cfg, Logger: logger, closers: []func(){flush}}

	cookiePath, err := auth.DefaultCookieStorePath()
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to get cookie store path: %w", err)
	}
	env.Cookies = auth.NewCookieStore(cookiePath)

	dbPath, err := store.DefaultPath()
	if err == nil {
		env.History, err = store.New(dbPath)
	}
	if err != nil {
		logger.Warn("Run history disabled", zap.Error(err))
		return env, nil
	}
	env.closers = append(env.closers, func() { env.History.Close() })

	if n, err := env.History.CloseInterrupted(ctx); err != nil {
		logger.Warn("Failed to close interrupted runs", zap.Error(err))
	} else if n > 0 {
		logger.Info("Closed interrupted runs", zap.Int("count", n))
	}
	return env, nil
}

// Close releases everything Setup opened, logger last
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
