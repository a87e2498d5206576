package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/xsweep/internal/auth"
	xbrowser "github.com/ibeckermayer/xsweep/internal/browser"
	"github.com/ibeckermayer/xsweep/internal/config"
	"github.com/ibeckermayer/xsweep/internal/control"
	"github.com/ibeckermayer/xsweep/internal/executor"
	"github.com/ibeckermayer/xsweep/internal/progress"
	"github.com/ibeckermayer/xsweep/internal/scheduler"
	"github.com/ibeckermayer/xsweep/internal/store"
	"github.com/ibeckermayer/xsweep/internal/types"
	"github.com/ibeckermayer/xsweep/internal/worker"
)

// App holds the application state.
type App struct {
	mu          sync.RWMutex
	cookieStore *auth.CookieStore // immutable after creation
	history     *store.Store      // nil when history is disabled
	hub         *control.Hub
	ctrl        *worker.Controller
	logger      *zap.Logger

	// Mutable fields - use getSnapshot() for concurrent access.
	config      *config.Config
	authManager *auth.Manager

	sinksMu sync.Mutex
	sinks   []progress.Sink
}

// snapshot holds fields that may be replaced by ReloadConfig.
type snapshot struct {
	config      *config.Config
	authManager *auth.Manager
}

func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:      a.config,
		authManager: a.authManager,
	}
}

// New creates an App. Runs open their own browser on the stored session.
// history may be nil.
func New(ctx context.Context, cfg *config.Config, cookieStore *auth.CookieStore, history *store.Store, logger *zap.Logger) *App {
	return newApp(ctx, cfg, cookieStore, history, logger, nil)
}

func newApp(ctx context.Context, cfg *config.Config, cookieStore *auth.CookieStore, history *store.Store, logger *zap.Logger, open worker.Opener) *App {
	a := &App{
		cookieStore: cookieStore,
		history:     history,
		hub:         control.NewHub(logger),
		logger:      logger,
		config:      cfg,
		authManager: auth.NewManager(cookieStore, cfg.Browser, logger),
	}
	if open == nil {
		open = a.openBrowser
	}

	opts := worker.Options{
		ScrollChunk:         cfg.Pacing.ScrollChunk,
		ScrollSettle:        cfg.Pacing.ScrollSettle(),
		CooldownTick:        cfg.Pacing.CooldownTick(),
		MaxActionsPerMinute: cfg.Pacing.MaxActionsPerMinute,
	}
	if history != nil {
		opts.Journal = history
	}
	sink := progress.Multi{progress.NewLogSink(logger), a.hub, a}
	a.ctrl = worker.New(ctx, open, sink, opts, logger)
	return a
}

// openBrowser launches Chrome on the stored session for one run
func (a *App) openBrowser(ctx context.Context) (worker.Target, error) {
	s := a.getSnapshot()
	cookies, err := s.authManager.Cookies()
	if err != nil {
		return worker.Target{}, err
	}

	catalog := s.config.Catalog()
	sess, err := xbrowser.Launch(ctx, s.config.Browser, cookies, catalog.FeedContainer, a.logger)
	if err != nil {
		return worker.Target{}, err
	}

	pacing := executor.Pacing{
		Step:    s.config.Pacing.Step(),
		Item:    s.config.Pacing.Item(),
		Dismiss: s.config.Pacing.Dismiss(),
	}
	t, err := worker.NewTarget(sess.Page(), catalog, pacing, a.logger)
	if err != nil {
		sess.Close()
		return worker.Target{}, fmt.Errorf("invalid selectors: %w", err)
	}
	t.Close = sess.Close
	return t, nil
}

// AddSink subscribes s to run events
func (a *App) AddSink(s progress.Sink) {
	a.sinksMu.Lock()
	a.sinks = append(a.sinks, s)
	a.sinksMu.Unlock()
}

func (a *App) subscribers() []progress.Sink {
	a.sinksMu.Lock()
	defer a.sinksMu.Unlock()
	return append([]progress.Sink(nil), a.sinks...)
}

// Progress forwards to the subscribers added with AddSink
func (a *App) Progress(p types.Progress) {
	for _, s := range a.subscribers() {
		s.Progress(p)
	}
}

// Stopped forwards to the subscribers added with AddSink
func (a *App) Stopped() {
	for _, s := range a.subscribers() {
		s.Stopped()
	}
}

// Controller returns the run controller
func (a *App) Controller() *worker.Controller {
	return a.ctrl
}

// Config returns the current configuration
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// RunConfig returns the configured run defaults with the given mode
func (a *App) RunConfig(mode types.Mode, undoReposts bool) types.RunConfig {
	cfg := a.getSnapshot().config.Run
	cfg.Mode = mode
	cfg.AlsoUndoReposts = undoReposts
	return cfg.Normalize()
}

// StartRun starts a run unless one is active or the session is missing
func (a *App) StartRun(cfg types.RunConfig) error {
	_, err := a.start(cfg)
	return err
}

func (a *App) start(cfg types.RunConfig) (<-chan struct{}, error) {
	if !a.IsAuthenticated() {
		return nil, auth.ErrNotLoggedIn
	}
	if err := cfg.Normalize().Validate(); err != nil {
		return nil, err
	}
	done, ok := a.ctrl.StartRun(cfg)
	if !ok {
		return nil, worker.ErrAlreadyRunning
	}
	a.logger.Info("Run started",
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("undo_reposts", cfg.AlsoUndoReposts),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("pause_ms", cfg.PauseMs),
	)
	return done, nil
}

// StopRun stops the active run, if any
func (a *App) StopRun() {
	a.ctrl.Stop()
}

// Status answers getStatus
func (a *App) Status() types.Status {
	return a.ctrl.Status()
}

// RunUntilDone starts a run and blocks until it stops or ctx is done
func (a *App) RunUntilDone(ctx context.Context, cfg types.RunConfig) error {
	done, err := a.start(cfg)
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		a.ctrl.Stop()
		<-done
	}
	return nil
}

// IsAuthenticated checks if X.com credentials are stored.
func (a *App) IsAuthenticated() bool {
	return a.getSnapshot().authManager.IsAuthenticated()
}

// TriggerLogin starts the X.com login flow.
func (a *App) TriggerLogin(ctx context.Context) error {
	a.logger.Info("Login triggered - opening browser for X.com authentication")
	if err := a.getSnapshot().authManager.Login(ctx); err != nil {
		a.logger.Error("Login failed", zap.Error(err))
		return err
	}
	a.logger.Info("Login successful - cookies saved")
	return nil
}

// TriggerLogout stops any run and clears stored X.com credentials.
func (a *App) TriggerLogout() error {
	a.logger.Info("Logout triggered - clearing stored cookies")
	a.ctrl.Stop()
	if err := a.getSnapshot().authManager.Logout(); err != nil {
		a.logger.Error("Logout failed", zap.Error(err))
		return err
	}
	a.logger.Info("Logout successful - cookies cleared")
	return nil
}

// History lists recent runs, newest first
func (a *App) History(ctx context.Context, limit int) ([]store.Run, error) {
	if a.history == nil {
		return nil, errors.New("run history is disabled")
	}
	return a.history.ListRuns(ctx, limit)
}

// OpenConfig opens the config file in the default editor
func (a *App) OpenConfig() error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	a.logger.Info("Opening config", zap.String("path", path))
	return browser.OpenFile(path)
}

// ReloadConfig reloads the configuration from disk. Browser, pacing and
// selector changes apply from the next run; loop timings need a restart.
func (a *App) ReloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.authManager = auth.NewManager(a.cookieStore, cfg.Browser, a.logger)
	a.mu.Unlock()

	a.logger.Info("Configuration reloaded")
	return nil
}

// Serve runs the control API and the schedule, as enabled in the config,
// until ctx is done. Any active run is stopped before it returns.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.getSnapshot().config
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Control.Enabled {
		var history control.History
		if a.history != nil {
			history = a.history
		}
		srv := control.NewServer(a.ctrl, a.hub, cfg.Run, history, a.logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Control.Listen)
		})
	}

	if cfg.Schedule.Enabled {
		loc, err := cfg.Schedule.Location()
		if err != nil {
			return err
		}
		sched := scheduler.New(loc, a.logger)
		if err := sched.AddCleanupJob(cfg.Schedule.Cron, a.ctrl, cfg.Run, cfg.Schedule.Duration()); err != nil {
			return err
		}
		sched.Start()
		a.logger.Info("Cleanup scheduled",
			zap.String("cron", cfg.Schedule.Cron),
			zap.Duration("duration", cfg.Schedule.Duration()),
		)
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.ctrl.Stop()
		a.ctrl.Wait()
		return nil
	})

	return g.Wait()
}
