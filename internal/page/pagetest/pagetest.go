// Package pagetest provides an in-memory page.Page for tests.
//
// Selector matching is by declaration: a node matches a selector when the
// selector (or one member of a comma-separated selector list) appears in the
// node's Matches. That is enough to exercise every strategy the cleaner uses
// without a CSS engine.
package pagetest

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ibeckermayer/xsweep/internal/page"
)

// Node describes a node to add to the document
type Node struct {
	Matches []string
	Text    string
	Attrs   map[string]string
	Rect    page.Rect
	// OnClick runs after the click is recorded, without the page lock held.
	OnClick func(p *Page)
}

type node struct {
	Node
	h        page.Handle
	parent   *node
	children []*node
}

// Page is a thread-safe fake document
type Page struct {
	mu         sync.Mutex
	seq        int
	root       *node
	nodes      map[page.Handle]*node
	viewport   float64
	clicks     []page.Handle
	scrolls    []int
	dismissals int
	onScroll   func(p *Page, dy int)
	onDismiss  func(p *Page)
	err        error
}

// New returns an empty document with a 900px viewport
func New() *Page {
	root := &node{h: page.Document}
	return &Page{
		root:     root,
		nodes:    map[page.Handle]*node{page.Document: root},
		viewport: 900,
	}
}

// Add attaches n under parent and returns its handle
func (p *Page) Add(parent page.Handle, n Node) page.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	par, ok := p.nodes[parent]
	if !ok {
		panic("pagetest: unknown parent " + string(parent))
	}
	p.seq++
	h := page.Handle("n" + strconv.Itoa(p.seq))
	c := &node{Node: n, h: h, parent: par}
	par.children = append(par.children, c)
	p.nodes[h] = c
	return h
}

// Remove detaches h and its subtree. Handles into the subtree stop resolving.
func (p *Page) Remove(h page.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[h]
	if !ok || n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// SetRect replaces a node's layout box
func (p *Page) SetRect(h page.Handle, r page.Rect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.nodes[h]; ok {
		n.Rect = r
	}
}

// SetViewport sets window.innerHeight
func (p *Page) SetViewport(height float64) {
	p.mu.Lock()
	p.viewport = height
	p.mu.Unlock()
}

// OnScroll registers a hook run after every ScrollBy
func (p *Page) OnScroll(fn func(p *Page, dy int)) {
	p.mu.Lock()
	p.onScroll = fn
	p.mu.Unlock()
}

// OnDismiss registers a hook run after every DismissOverlays
func (p *Page) OnDismiss(fn func(p *Page)) {
	p.mu.Lock()
	p.onDismiss = fn
	p.mu.Unlock()
}

// FailWith makes every subsequent call return err; nil restores normal behaviour
func (p *Page) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Clicks returns the handles clicked so far, in order
func (p *Page) Clicks() []page.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]page.Handle(nil), p.clicks...)
}

// Scrolls returns the dy of every ScrollBy call so far
func (p *Page) Scrolls() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.scrolls...)
}

// Dismissals returns how many times DismissOverlays was called
func (p *Page) Dismissals() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dismissals
}

// Attached reports whether h is still part of the document
func (p *Page) Attached(h page.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[h]
	return ok && p.attached(n)
}

func (p *Page) attached(n *node) bool {
	for n != p.root {
		if n.parent == nil {
			return false
		}
		n = n.parent
	}
	return true
}

// lookup returns the attached node for h, or nil
func (p *Page) lookup(h page.Handle) *node {
	n, ok := p.nodes[h]
	if !ok || !p.attached(n) {
		return nil
	}
	return n
}

func matches(n *node, selector string) bool {
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		for _, m := range n.Matches {
			if m == part {
				return true
			}
		}
	}
	return false
}

func textContent(n *node) string {
	var b strings.Builder
	b.WriteString(n.Text)
	for _, c := range n.children {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func (p *Page) QueryAll(ctx context.Context, scope page.Handle, selector string) ([]page.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	root := p.lookup(scope)
	if root == nil {
		return nil, nil
	}
	var out []page.Handle
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.children {
			if matches(c, selector) {
				out = append(out, c.h)
			}
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func (p *Page) Text(ctx context.Context, h page.Handle) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", err
	}
	n := p.lookup(h)
	if n == nil || n == p.root {
		return "", nil
	}
	return textContent(n), nil
}

func (p *Page) Attr(ctx context.Context, h page.Handle, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", false, err
	}
	n := p.lookup(h)
	if n == nil || n == p.root {
		return "", false, nil
	}
	v, ok := n.Attrs[name]
	return v, ok, nil
}

func (p *Page) Rect(ctx context.Context, h page.Handle) (page.Rect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return page.Rect{}, err
	}
	n := p.lookup(h)
	if n == nil || n == p.root {
		return page.Rect{}, nil
	}
	return n.Rect, nil
}

func (p *Page) Closest(ctx context.Context, h page.Handle, selector string) (page.Handle, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return "", false, err
	}
	for n := p.lookup(h); n != nil && n != p.root; n = n.parent {
		if matches(n, selector) {
			return n.h, true, nil
		}
	}
	return "", false, nil
}

func (p *Page) Click(ctx context.Context, h page.Handle) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	n := p.lookup(h)
	if n == nil || n == p.root {
		p.mu.Unlock()
		return page.ErrDetached
	}
	p.clicks = append(p.clicks, h)
	hook := n.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, dy int) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	p.scrolls = append(p.scrolls, dy)
	hook := p.onScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p, dy)
	}
	return nil
}

func (p *Page) ViewportHeight(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(ctx); err != nil {
		return 0, err
	}
	return p.viewport, nil
}

func (p *Page) DismissOverlays(ctx context.Context) error {
	p.mu.Lock()
	if err := p.check(ctx); err != nil {
		p.mu.Unlock()
		return err
	}
	p.dismissals++
	hook := p.onDismiss
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// check must be called with p.mu held
func (p *Page) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.err
}

var _ page.Page = (*Page)(nil)
