package scanner

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/ibeckermayer/xsweep/internal/page"
	"github.com/ibeckermayer/xsweep/internal/selectors"
)

// Item is a transient reference to one rendered post for the current scan pass
type Item struct {
	Handle page.Handle
	Rect   page.Rect
}

// Scanner enumerates the feed items currently laid out on the page
type Scanner struct {
	page     page.Page
	patterns []string
	link     string
	statusRe *regexp.Regexp
}

// New creates a scanner for the catalog's item patterns
func New(p page.Page, c selectors.Catalog) (*Scanner, error) {
	re, err := regexp.Compile(c.StatusPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid status pattern %q: %w", c.StatusPattern, err)
	}
	return &Scanner{
		page:     p,
		patterns: c.Items,
		link:     c.StatusLink,
		statusRe: re,
	}, nil
}

// ListVisibleItems returns the laid-out items ordered top to bottom.
// The result is never cached: X mounts and unmounts posts as the page scrolls.
func (s *Scanner) ListVisibleItems(ctx context.Context) ([]Item, error) {
	seen := make(map[page.Handle]bool)
	var items []Item

	for _, pattern := range s.patterns {
		hs, err := s.page.QueryAll(ctx, page.Document, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to query items: %w", err)
		}
		for _, h := range hs {
			if seen[h] {
				continue
			}
			seen[h] = true

			rect, err := s.page.Rect(ctx, h)
			if err != nil {
				return nil, fmt.Errorf("failed to measure item: %w", err)
			}
			if rect.Empty() {
				continue
			}
			items = append(items, Item{Handle: h, Rect: rect})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Rect.Top < items[j].Rect.Top
	})
	return items, nil
}

// ItemID extracts the post id from the item's first status link.
// Returns "" when the item has no link or the link carries no id.
func (s *Scanner) ItemID(ctx context.Context, item Item) (string, error) {
	links, err := s.page.QueryAll(ctx, item.Handle, s.link)
	if err != nil || len(links) == 0 {
		return "", err
	}
	href, ok, err := s.page.Attr(ctx, links[0], "href")
	if err != nil || !ok {
		return "", err
	}
	m := s.statusRe.FindStringSubmatch(href)
	if len(m) < 2 {
		return "", nil
	}
	return m[1], nil
}

// Position re-measures an item; the page may have shifted since the scan
func (s *Scanner) Position(ctx context.Context, item Item) (page.Rect, error) {
	return s.page.Rect(ctx, item.Handle)
}

// Viewport returns the height of the visible window
func (s *Scanner) Viewport(ctx context.Context) (float64, error) {
	return s.page.ViewportHeight(ctx)
}
