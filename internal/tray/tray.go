package tray

import (
	"context"
	_ "embed"
	"time"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/app"
	"github.com/ibeckermayer/xsweep/internal/progress"
	"github.com/ibeckermayer/xsweep/internal/types"
)

//go:embed icon.png
var iconBytes []byte

// statusRefresh keeps the elapsed timer moving between progress events
const statusRefresh = time.Second

// OnReady returns a systray onReady callback that sets up the menu.
func OnReady(ctx context.Context, a *app.App, logger *zap.Logger) func() {
	logger = logger.Named("tray")
	return func() {
		// Set icon (template icon for macOS menu bar styling)
		systray.SetTemplateIcon(iconBytes, iconBytes)
		systray.SetTitle("")
		systray.SetTooltip("xsweep - clean up your X timeline")

		// Live run status (disabled, just for display)
		mStatus := systray.AddMenuItem("Idle", "Run status")
		mStatus.Disable()

		// Auth status and action (Login / Logout)
		mAuthStatus := systray.AddMenuItem("", "Authentication status")
		mAuthStatus.Disable()
		mAuthAction := systray.AddMenuItem("", "Login or logout from X")

		systray.AddSeparator()

		mDelete := systray.AddMenuItem("Start Deleting", "Delete your posts and replies on this page")
		mDeleteUndo := systray.AddMenuItem("Start Deleting + Undo Reposts", "Also undo reposts")
		mUnlike := systray.AddMenuItem("Start Unliking", "Unlike every liked post on this page")
		mStop := systray.AddMenuItem("Stop", "Stop the current run")

		systray.AddSeparator()

		mEditConfig := systray.AddMenuItem("Edit Config", "Open config file in editor")
		mReloadConfig := systray.AddMenuItem("Reload Config", "Reload configuration from disk")

		systray.AddSeparator()

		mQuit := systray.AddMenuItem("Quit", "Exit xsweep")

		updateAuthUI := func() {
			if a.IsAuthenticated() {
				mAuthStatus.SetTitle("● Connected to X")
				mAuthAction.SetTitle("Logout")
			} else {
				mAuthStatus.SetTitle("○ Not connected")
				mAuthAction.SetTitle("Login to X")
			}
		}

		latest := &progress.Latest{}
		refresh := make(chan struct{}, 1)
		poke := func() {
			select {
			case refresh <- struct{}{}:
			default:
			}
		}
		a.AddSink(progress.Multi{latest, progress.Func{
			OnProgress: func(types.Progress) { poke() },
			OnStopped:  poke,
		}})

		updateRunUI := func() {
			st := a.Status()
			last, ok := latest.Get()
			mStatus.SetTitle(progress.Line(st, last, ok, time.Now()))
			for _, m := range []*systray.MenuItem{mDelete, mDeleteUndo, mUnlike} {
				if st.Running {
					m.Disable()
				} else {
					m.Enable()
				}
			}
			if st.Running {
				mStop.Enable()
			} else {
				mStop.Disable()
			}
		}

		start := func(mode types.Mode, undo bool) {
			if err := a.StartRun(a.RunConfig(mode, undo)); err != nil {
				logger.Warn("Run not started", zap.Error(err))
			}
			updateRunUI()
		}

		updateAuthUI()
		updateRunUI()

		go func() {
			ticker := time.NewTicker(statusRefresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if a.Status().Running {
						updateRunUI()
					}
				case <-refresh:
					updateRunUI()
				}
			}
		}()

		// Handle menu clicks
		go func() {
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return

				case <-mAuthAction.ClickedCh:
					if a.IsAuthenticated() {
						if err := a.TriggerLogout(); err != nil {
							logger.Error("Logout error", zap.Error(err))
						}
					} else {
						if err := a.TriggerLogin(ctx); err != nil {
							logger.Error("Login error", zap.Error(err))
						}
					}
					updateAuthUI()

				case <-mDelete.ClickedCh:
					start(types.ModeDelete, false)

				case <-mDeleteUndo.ClickedCh:
					start(types.ModeDelete, true)

				case <-mUnlike.ClickedCh:
					start(types.ModeUnlike, false)

				case <-mStop.ClickedCh:
					a.StopRun()

				case <-mEditConfig.ClickedCh:
					if err := a.OpenConfig(); err != nil {
						logger.Error("Failed to open config file", zap.Error(err))
					}

				case <-mReloadConfig.ClickedCh:
					if err := a.ReloadConfig(); err != nil {
						logger.Error("Failed to reload config", zap.Error(err))
					}
					updateAuthUI()

				case <-mQuit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()
	}
}

// OnExit returns the systray onExit callback. stop cancels the app context.
func OnExit(stop func(), logger *zap.Logger) func() {
	return func() {
		logger.Info("xsweep shutting down...")
		stop()
	}
}
