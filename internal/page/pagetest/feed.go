package pagetest

import (
	"sync"

	"github.com/ibeckermayer/xsweep/internal/page"
	"github.com/ibeckermayer/xsweep/internal/selectors"
)

// TweetHeight is the layout height of every tweet built by Feed
const TweetHeight = 100

// Tweet describes one feed item for Feed.Add
type Tweet struct {
	ID     string // empty: no status link
	Top    float64
	Hidden bool

	Liked    bool // exposes an unlike control
	Reposted bool // exposes an un-repost control

	// Delete flow shape. Zero values give a fully deletable tweet.
	NoMoreButton       bool
	MenuLabel          string // defaults to "Delete"
	NoConfirm          bool
	ConfirmByText      bool // confirm button has no test id, only the "Delete" label
	NoUnretweetConfirm bool
}

// Feed builds X-shaped tweets into a Page and records what the cleaner did to them
type Feed struct {
	*Page
	Catalog selectors.Catalog

	mu         sync.Mutex
	deleted    []string
	unliked    []string
	unreposted []string
}

// NewFeed returns a Feed over a fresh Page using the default catalog
func NewFeed() *Feed {
	return &Feed{Page: New(), Catalog: selectors.Default()}
}

// Add builds the tweet and returns the article handle
func (f *Feed) Add(t Tweet) page.Handle {
	c := f.Catalog
	rect := page.Rect{Top: t.Top, Bottom: t.Top + TweetHeight, Left: 0, Right: 600, Width: 600, Height: TweetHeight}
	if t.Hidden {
		rect = page.Rect{}
	}
	article := f.Page.Add(page.Document, Node{
		Matches: []string{c.Items[0], c.Items[len(c.Items)-1], c.TweetContainer},
		Rect:    rect,
	})

	if t.ID != "" {
		f.Page.Add(article, Node{
			Matches: []string{c.StatusLink},
			Attrs:   map[string]string{"href": "/someone/status/" + t.ID},
		})
	}

	group := f.Page.Add(article, Node{Matches: []string{c.ActionGroup}})

	if t.Liked {
		var unlike page.Handle
		unlike = f.Page.Add(group, Node{
			Matches: []string{c.Unlike},
			OnClick: func(p *Page) {
				p.Remove(unlike)
				f.record(&f.unliked, t.ID)
			},
		})
	}

	if t.Reposted {
		var unretweet page.Handle
		unretweet = f.Page.Add(group, Node{
			Matches: []string{c.Unretweet},
			OnClick: func(p *Page) {
				if t.NoUnretweetConfirm {
					return
				}
				var confirm page.Handle
				confirm = p.Add(page.Document, Node{
					Matches: []string{c.UnretweetConfirm},
					OnClick: func(p *Page) {
						p.Remove(confirm)
						p.Remove(unretweet)
						f.record(&f.unreposted, t.ID)
					},
				})
			},
		})
	}

	if !t.NoMoreButton {
		f.Page.Add(group, Node{
			Matches: []string{c.MoreButton[0]},
			OnClick: func(p *Page) { f.openMenu(article, t) },
		})
	}
	return article
}

// openMenu mounts the overflow menu X renders at the document root
func (f *Feed) openMenu(article page.Handle, t Tweet) {
	c := f.Catalog
	label := t.MenuLabel
	if label == "" {
		label = "Delete"
	}
	menu := f.Page.Add(page.Document, Node{Matches: []string{`[role="menu"]`}})
	f.Page.Add(menu, Node{Matches: []string{c.MenuItem}, Text: "Pin to your profile"})
	item := f.Page.Add(menu, Node{
		Matches: []string{c.MenuItem},
		OnClick: func(p *Page) {
			p.Remove(menu)
			if t.NoConfirm {
				return
			}
			f.openConfirm(article, t)
		},
	})
	f.Page.Add(item, Node{Matches: []string{c.MenuCandidates[1]}, Text: label})
	f.Page.OnDismiss(func(p *Page) { p.Remove(menu) })
}

func (f *Feed) openConfirm(article page.Handle, t Tweet) {
	c := f.Catalog
	dialog := f.Page.Add(page.Document, Node{Matches: []string{c.Dialogs[0]}})
	f.Page.Add(dialog, Node{Matches: []string{c.DialogText[0]}, Text: "Delete post?"})
	f.Page.Add(dialog, Node{Matches: []string{c.Button}, Text: "Cancel"})

	confirm := Node{
		Matches: []string{c.ConfirmButtons[0], c.Button},
		OnClick: func(p *Page) {
			p.Remove(dialog)
			p.Remove(article)
			f.record(&f.deleted, t.ID)
		},
	}
	if t.ConfirmByText {
		confirm.Matches = []string{c.Button}
	}
	button := f.Page.Add(dialog, confirm)
	f.Page.Add(button, Node{Matches: []string{c.DialogText[0]}, Text: "Delete"})
	f.Page.OnDismiss(func(p *Page) { p.Remove(dialog) })
}

func (f *Feed) record(dst *[]string, id string) {
	f.mu.Lock()
	*dst = append(*dst, id)
	f.mu.Unlock()
}

// Deleted returns the ids of tweets whose delete was confirmed
func (f *Feed) Deleted() []string { return f.snapshot(&f.deleted) }

// Unliked returns the ids of tweets whose unlike control was clicked
func (f *Feed) Unliked() []string { return f.snapshot(&f.unliked) }

// Unreposted returns the ids of tweets whose un-repost was confirmed
func (f *Feed) Unreposted() []string { return f.snapshot(&f.unreposted) }

func (f *Feed) snapshot(src *[]string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), *src...)
}
