package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/browser"
	"github.com/ibeckermayer/xsweep/internal/config"
)

const (
	loginURL     = "https://x.com/login"
	loginTimeout = 5 * time.Minute
	pollInterval = 2 * time.Second
)

// Manager handles X.com authentication
type Manager struct {
	cookieStore *CookieStore
	browser     config.BrowserConfig
	logger      *zap.Logger
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, browserCfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cookieStore: cookieStore,
		browser:     browserCfg,
		logger:      logger.Named("auth"),
	}
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid(time.Now())
}

// Login opens a visible browser window for the user to sign in to X, then stores
// the session cookies. Gives up after five minutes.
func (m *Manager) Login(ctx context.Context) error {
	cfg := m.browser
	cfg.Headless = false

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, browser.Options(cfg)...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}
	m.logger.Info("Waiting for sign-in in the browser window", zap.Duration("timeout", loginTimeout))

	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}
	m.logger.Info("Signed in", zap.String("cookies", m.cookieStore.Path()))
	return nil
}

// waitForLogin polls until the tab reaches the home timeline with an auth cookie set
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(loginTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return errors.New("login timeout exceeded")
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !IsHomeURL(url) {
				continue
			}

			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			if HasSession(cookies) {
				return nil
			}
		}
	}
}

// IsHomeURL reports whether url is the signed-in home timeline
func IsHomeURL(url string) bool {
	for _, prefix := range []string{"https://x.com/home", "https://twitter.com/home"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// HasSession reports whether cookies include a non-empty auth token
func HasSession(cookies []*network.Cookie) bool {
	for _, c := range cookies {
		if c.Name == CookieAuthToken && c.Value != "" {
			return true
		}
	}
	return false
}

func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored session cookies for a new browser session
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	if !m.IsAuthenticated() {
		return nil, ErrNotLoggedIn
	}
	return m.cookieStore.XCookies()
}
