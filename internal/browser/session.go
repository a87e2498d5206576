package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/config"
	"github.com/ibeckermayer/xsweep/internal/page"
)

// ErrSignedOut means the start page did not show the signed-in feed in time
var ErrSignedOut = errors.New("the x.com feed did not load, the stored session may have expired")

// Session is one Chrome process with a single tab on the user's feed
type Session struct {
	tab    context.Context
	cancel func()
	page   *page.CDP
	logger *zap.Logger
}

// Launch starts Chrome, restores the session cookies and opens cfg.StartURL.
// waitFor is a selector that only renders for a signed-in user.
//
// ctx bounds the launch only. The browser lives until Close, so a click
// sequence already in flight can finish after ctx is cancelled.
func Launch(ctx context.Context, cfg config.BrowserConfig, cookies []*network.Cookie, waitFor string, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), Options(cfg)...)
	tab, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)
	s := &Session{
		tab: tab,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		page:   page.NewCDP(tab),
		logger: logger,
	}

	if err := injectCookies(tab, cookies); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}

	timeout := time.Duration(cfg.LoadTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	loadCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(loadCtx, chromedp.Navigate(cfg.StartURL)); err != nil {
		s.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to open %s: %w", cfg.StartURL, err)
	}
	if waitFor != "" {
		if err := chromedp.Run(loadCtx, chromedp.WaitVisible(waitFor, chromedp.ByQuery)); err != nil {
			s.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrSignedOut
			}
			return nil, fmt.Errorf("failed to load feed: %w", err)
		}
	}

	logger.Info("Browser ready", zap.String("url", cfg.StartURL), zap.Bool("headless", cfg.Headless))
	return s, nil
}

// injectCookies sets cookies in the browser context
func injectCookies(ctx context.Context, cookies []*network.Cookie) error {
	return chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				err := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithSameSite(c.SameSite).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}

// Page is the tab as a page.Page
func (s *Session) Page() page.Page {
	return s.page
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	s.logger.Debug("Browser closed")
}
