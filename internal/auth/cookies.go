package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/xsweep/internal/config"
)

// Names of the cookies that make up a signed-in X session
const (
	CookieAuthToken = "auth_token"
	CookieCSRF      = "ct0"
)

// ErrNotLoggedIn is returned when no usable session is stored
var ErrNotLoggedIn = errors.New("not logged in to x.com, run `xsweep login` first")

// CookieStore keeps the X session cookies on disk
type CookieStore struct {
	path string
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "cookies.json"), nil
}

// Path is where the cookies live
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists cookies to disk. ExpiresAt is the earliest expiry among the session cookies.
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	var earliestExpiry time.Time
	for _, c := range cookies {
		if c.Name != CookieAuthToken && c.Name != CookieCSRF {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliestExpiry.IsZero() || exp.Before(earliestExpiry) {
			earliestExpiry = exp
		}
	}

	stored := StoredCookies{
		Cookies:    cookies,
		CapturedAt: time.Now(),
		ExpiresAt:  earliestExpiry,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cs.path, err)
	}
	return &stored, nil
}

// IsValid reports whether the stored session is complete and unexpired at now
func (cs *CookieStore) IsValid(now time.Time) bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}
	if now.After(stored.ExpiresAt) {
		return false
	}

	hasAuthToken, hasCSRF := false, false
	for _, c := range stored.Cookies {
		switch c.Name {
		case CookieAuthToken:
			hasAuthToken = c.Value != ""
		case CookieCSRF:
			hasCSRF = c.Value != ""
		}
	}
	return hasAuthToken && hasCSRF
}

// Clear removes stored cookies. Clearing an empty store is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// XCookies returns only the x.com cookies, ready to inject into a browser
func (cs *CookieStore) XCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var xCookies []*network.Cookie
	for _, c := range stored.Cookies {
		if c.Domain == ".x.com" || c.Domain == "x.com" {
			xCookies = append(xCookies, c)
		}
	}
	if len(xCookies) == 0 {
		return nil, ErrNotLoggedIn
	}
	return xCookies, nil
}
