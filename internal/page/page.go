// Package page defines the narrow DOM capability the automation loop needs.
// Everything that touches the live document goes through Page so the loop can be
// driven by chromedp in production and by an in-memory document in tests.
package page

import (
	"context"
	"errors"
)

// Handle is an opaque reference to a DOM node. The empty handle is the document.
type Handle string

// Document is the root scope for queries
const Document Handle = ""

// ErrDetached is returned when a handle no longer resolves to a node in the document
var ErrDetached = errors.New("node detached from document")

// Rect is a layout box in viewport coordinates, as returned by getBoundingClientRect
type Rect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the node has no rendering box (hidden or detached)
func (r Rect) Empty() bool {
	return r.Width == 0 && r.Height == 0
}

// Page is the DOM capability. Absence is never an error: queries return empty
// results and lookups return ok=false. Errors mean the page could not be reached.
type Page interface {
	// QueryAll returns nodes under scope matching selector, in document order.
	QueryAll(ctx context.Context, scope Handle, selector string) ([]Handle, error)
	// Text returns the node's textContent.
	Text(ctx context.Context, h Handle) (string, error)
	// Attr returns an attribute value and whether the attribute is present.
	Attr(ctx context.Context, h Handle, name string) (string, bool, error)
	// Rect returns the node's layout box; hidden and detached nodes return an empty box.
	Rect(ctx context.Context, h Handle) (Rect, error)
	// Closest returns the nearest ancestor (or the node itself) matching selector.
	Closest(ctx context.Context, h Handle, selector string) (Handle, bool, error)
	// Click dispatches a click on the node.
	Click(ctx context.Context, h Handle) error
	// ScrollBy scrolls the window vertically by dy pixels.
	ScrollBy(ctx context.Context, dy int) error
	// ViewportHeight returns window.innerHeight.
	ViewportHeight(ctx context.Context) (float64, error)
	// DismissOverlays clicks outside any open menu or dialog.
	DismissOverlays(ctx context.Context) error
}
