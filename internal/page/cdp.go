package page

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultCallTimeout bounds a single round trip to the browser
const DefaultCallTimeout = 15 * time.Second

// helperJS installs (once per document) the node-handle helper the CDP page calls into.
// Nodes are tagged with a data attribute so a handle keeps resolving between scans
// for as long as X keeps the node mounted.
const helperJS = `(function() {
	if (window.__xsweep) return window.__xsweep;
	const ATTR = 'data-xsweep-h';
	let seq = 0;
	const tag = (el) => {
		let h = el.getAttribute(ATTR);
		if (!h) {
			h = 'n' + (++seq);
			el.setAttribute(ATTR, h);
		}
		return h;
	};
	const resolve = (h) => h === '' ? document : document.querySelector('[' + ATTR + '="' + h + '"]');
	const element = (h) => {
		const el = resolve(h);
		return el && el !== document ? el : null;
	};
	const api = {
		queryAll(scope, sel) {
			const root = resolve(scope);
			if (!root) return [];
			return Array.from(root.querySelectorAll(sel)).map(tag);
		},
		text(h) {
			const el = element(h);
			return el ? (el.textContent || '') : '';
		},
		attr(h, name) {
			const el = element(h);
			if (!el || !el.hasAttribute(name)) return {ok: false, value: ''};
			return {ok: true, value: el.getAttribute(name)};
		},
		rect(h) {
			const el = element(h);
			if (!el || el.offsetParent === null) {
				return {top: 0, bottom: 0, left: 0, right: 0, width: 0, height: 0};
			}
			const r = el.getBoundingClientRect();
			return {top: r.top, bottom: r.bottom, left: r.left, right: r.right, width: r.width, height: r.height};
		},
		closest(h, sel) {
			const el = element(h);
			if (!el) return '';
			const c = el.closest(sel);
			return c ? tag(c) : '';
		},
		click(h) {
			const el = element(h);
			if (!el) return false;
			el.click();
			return true;
		},
		scrollBy(dy) {
			window.scrollBy(0, dy);
			return true;
		},
		viewport() {
			return window.innerHeight;
		},
		dismiss() {
			document.body.click();
			return true;
		}
	};
	window.__xsweep = api;
	return api;
})()`

// CDP implements Page over a chromedp tab context
type CDP struct {
	tab     context.Context
	timeout time.Duration
}

// NewCDP wraps a context created by chromedp.NewContext
func NewCDP(tab context.Context) *CDP {
	return &CDP{tab: tab, timeout: DefaultCallTimeout}
}

// call invokes a helper method with JSON-encoded arguments and decodes the result into res.
// The call runs on the tab context but is abandoned as soon as ctx is done.
func (p *CDP) call(ctx context.Context, res any, method string, args ...any) error {
	encoded := make([]byte, 0, 64)
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode argument for %s: %w", method, err)
		}
		if i > 0 {
			encoded = append(encoded, ',')
		}
		encoded = append(encoded, b...)
	}
	expr := fmt.Sprintf("%s.%s(%s)", helperJS, method, encoded)

	runCtx, cancel := context.WithTimeout(p.tab, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, res)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page %s failed: %w", method, err)
	}
	return nil
}

func (p *CDP) QueryAll(ctx context.Context, scope Handle, selector string) ([]Handle, error) {
	var hs []Handle
	if err := p.call(ctx, &hs, "queryAll", scope, selector); err != nil {
		return nil, err
	}
	return hs, nil
}

func (p *CDP) Text(ctx context.Context, h Handle) (string, error) {
	var s string
	err := p.call(ctx, &s, "text", h)
	return s, err
}

func (p *CDP) Attr(ctx context.Context, h Handle, name string) (string, bool, error) {
	var v struct {
		OK    bool   `json:"ok"`
		Value string `json:"value"`
	}
	if err := p.call(ctx, &v, "attr", h, name); err != nil {
		return "", false, err
	}
	return v.Value, v.OK, nil
}

func (p *CDP) Rect(ctx context.Context, h Handle) (Rect, error) {
	var r Rect
	err := p.call(ctx, &r, "rect", h)
	return r, err
}

func (p *CDP) Closest(ctx context.Context, h Handle, selector string) (Handle, bool, error) {
	var c Handle
	if err := p.call(ctx, &c, "closest", h, selector); err != nil {
		return "", false, err
	}
	return c, c != "", nil
}

func (p *CDP) Click(ctx context.Context, h Handle) error {
	var ok bool
	if err := p.call(ctx, &ok, "click", h); err != nil {
		return err
	}
	if !ok {
		return ErrDetached
	}
	return nil
}

func (p *CDP) ScrollBy(ctx context.Context, dy int) error {
	var ok bool
	return p.call(ctx, &ok, "scrollBy", dy)
}

func (p *CDP) ViewportHeight(ctx context.Context) (float64, error) {
	var h float64
	err := p.call(ctx, &h, "viewport")
	return h, err
}

func (p *CDP) DismissOverlays(ctx context.Context) error {
	var ok bool
	return p.call(ctx, &ok, "dismiss")
}
