// Package locator finds action targets in a page that ships no stable contract.
// A lookup is an ordered list of independent strategies; the first one that
// matches wins and the rest are never consulted.
package locator

import (
	"context"
	"strings"

	"github.com/ibeckermayer/xsweep/internal/page"
)

// Strategy is one way of finding an element under a root
type Strategy interface {
	Find(ctx context.Context, p page.Page, root page.Handle) (page.Handle, bool, error)
}

// FindFirst tries strategies in order and returns the first match.
// No match is a normal result (ok=false); errors only come from the page itself.
func FindFirst(ctx context.Context, p page.Page, root page.Handle, strategies ...Strategy) (page.Handle, bool, error) {
	for _, s := range strategies {
		h, ok, err := s.Find(ctx, p, root)
		if err != nil {
			return "", false, err
		}
		if ok {
			return h, true, nil
		}
	}
	return "", false, nil
}

// Selector matches the first node under root for a CSS selector
type Selector string

func (s Selector) Find(ctx context.Context, p page.Page, root page.Handle) (page.Handle, bool, error) {
	hs, err := p.QueryAll(ctx, root, string(s))
	if err != nil || len(hs) == 0 {
		return "", false, err
	}
	return hs[0], true, nil
}

// Selectors turns a selector list into strategies, keeping its order
func Selectors(sels ...string) []Strategy {
	out := make([]Strategy, 0, len(sels))
	for _, s := range sels {
		out = append(out, Selector(s))
	}
	return out
}

// Text matches the first candidate whose trimmed text equals one of Labels.
//
// Candidates are queried as a single selector list, so matches come back in
// document order regardless of which candidate selector produced them. When
// Scopes is set, candidates are searched inside each scope match in turn.
// When Prefer is set and the match has such an ancestor, the ancestor is returned.
type Text struct {
	Scopes     []string
	Candidates []string
	Labels     []string
	Prefer     string
}

func (t Text) Find(ctx context.Context, p page.Page, root page.Handle) (page.Handle, bool, error) {
	roots := []page.Handle{root}
	if len(t.Scopes) > 0 {
		var err error
		roots, err = p.QueryAll(ctx, root, strings.Join(t.Scopes, ", "))
		if err != nil {
			return "", false, err
		}
	}

	candidates := strings.Join(t.Candidates, ", ")
	for _, r := range roots {
		hs, err := p.QueryAll(ctx, r, candidates)
		if err != nil {
			return "", false, err
		}
		for _, h := range hs {
			text, err := p.Text(ctx, h)
			if err != nil {
				return "", false, err
			}
			if !t.matches(strings.TrimSpace(text)) {
				continue
			}
			if t.Prefer != "" {
				if anc, ok, err := p.Closest(ctx, h, t.Prefer); err != nil {
					return "", false, err
				} else if ok {
					return anc, true, nil
				}
			}
			return h, true, nil
		}
	}
	return "", false, nil
}

func (t Text) matches(text string) bool {
	for _, l := range t.Labels {
		if text == l {
			return true
		}
	}
	return false
}

// Within re-roots Inner at the first node matching Scope under root
type Within struct {
	Scope string
	Inner []Strategy
}

func (w Within) Find(ctx context.Context, p page.Page, root page.Handle) (page.Handle, bool, error) {
	scope, ok, err := Selector(w.Scope).Find(ctx, p, root)
	if err != nil || !ok {
		return "", false, err
	}
	return FindFirst(ctx, p, scope, w.Inner...)
}

// Ancestor re-roots Inner at the closest ancestor of root matching Selector
type Ancestor struct {
	Selector string
	Inner    []Strategy
}

func (a Ancestor) Find(ctx context.Context, p page.Page, root page.Handle) (page.Handle, bool, error) {
	anc, ok, err := p.Closest(ctx, root, a.Selector)
	if err != nil || !ok {
		return "", false, err
	}
	return FindFirst(ctx, p, anc, a.Inner...)
}

// Exists reports whether any strategy matches
func Exists(ctx context.Context, p page.Page, root page.Handle, strategies ...Strategy) (bool, error) {
	_, ok, err := FindFirst(ctx, p, root, strategies...)
	return ok, err
}
