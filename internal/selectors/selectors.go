// Package selectors holds the X.com DOM contract the cleaner depends on.
// X changes their DOM frequently; everything here can be overridden from the
// [selectors] section of config.toml without a rebuild.
package selectors

// Catalog is the full set of selectors and labels used to find items and controls
type Catalog struct {
	// Feed items, narrow pattern first and broad pattern last
	Items []string `toml:"items"`

	// Status link and the pattern that extracts the item id from its href
	StatusLink    string `toml:"status_link"`
	StatusPattern string `toml:"status_pattern"`

	// Delete flow
	MoreButton     []string `toml:"more_button"`
	ActionGroup    string   `toml:"action_group"`
	TweetContainer string   `toml:"tweet_container"`
	MenuCandidates []string `toml:"menu_candidates"`
	MenuItem       string   `toml:"menu_item"`
	DeleteLabels   []string `toml:"delete_labels"`
	ConfirmButtons []string `toml:"confirm_buttons"`
	Dialogs        []string `toml:"dialogs"`
	DialogText     []string `toml:"dialog_text"`
	Button         string   `toml:"button"`

	// Undo repost flow
	Unretweet        string `toml:"unretweet"`
	UnretweetConfirm string `toml:"unretweet_confirm"`

	// Unlike flow
	Unlike string `toml:"unlike"`

	// Login page indicators (for detecting auth state)
	HomeIndicator string `toml:"home_indicator"`
	FeedContainer string `toml:"feed_container"`
}

// Default returns the selectors known to work against the current X web client
func Default() Catalog {
	return Catalog{
		Items: []string{
			`article[role="article"][data-testid*="tweet"]`,
			`article[role="article"]`,
		},

		StatusLink:    `a[href*="/status/"]`,
		StatusPattern: `status/(\d+)`,

		MoreButton: []string{
			`[data-testid="caret"]`,
			`[aria-label="More"]`,
			`button[aria-label="More"]`,
			`[data-testid="overflow"]`,
			`[aria-haspopup="menu"][role="button"] svg[aria-hidden="true"]`,
		},
		ActionGroup:    `[role="group"]`,
		TweetContainer: `[data-testid="tweet"]`,
		MenuCandidates: []string{
			`[role="menuitem"]`,
			`[role="menu"] span`,
			`div[role="dialog"] span`,
			`div[role="menu"] div`,
		},
		MenuItem:     `[role="menuitem"]`,
		DeleteLabels: []string{"Delete", "Hapus", "Eliminar", "Löschen", "Supprimer"},
		ConfirmButtons: []string{
			`[data-testid="confirmationSheetConfirm"]`,
			`[data-testid="ConfirmationDialog-Confirm"]`,
			`[data-testid="confirmationSheetConfirmDialog"]`,
		},
		Dialogs:    []string{`div[role="dialog"]`, `div[aria-modal="true"]`},
		DialogText: []string{`span`, `div`, `button`},
		Button:     `button`,

		Unretweet:        `[data-testid="unretweet"]`,
		UnretweetConfirm: `[data-testid="unretweetConfirm"]`,

		Unlike: `[data-testid="unlike"]`,

		HomeIndicator: `[data-testid="SideNav_NewTweet_Button"]`,
		FeedContainer: `[data-testid="primaryColumn"]`,
	}
}

// Merge returns c with every non-empty field of override applied on top
func (c Catalog) Merge(override Catalog) Catalog {
	mergeList(&c.Items, override.Items)
	mergeString(&c.StatusLink, override.StatusLink)
	mergeString(&c.StatusPattern, override.StatusPattern)
	mergeList(&c.MoreButton, override.MoreButton)
	mergeString(&c.ActionGroup, override.ActionGroup)
	mergeString(&c.TweetContainer, override.TweetContainer)
	mergeList(&c.MenuCandidates, override.MenuCandidates)
	mergeString(&c.MenuItem, override.MenuItem)
	mergeList(&c.DeleteLabels, override.DeleteLabels)
	mergeList(&c.ConfirmButtons, override.ConfirmButtons)
	mergeList(&c.Dialogs, override.Dialogs)
	mergeList(&c.DialogText, override.DialogText)
	mergeString(&c.Button, override.Button)
	mergeString(&c.Unretweet, override.Unretweet)
	mergeString(&c.UnretweetConfirm, override.UnretweetConfirm)
	mergeString(&c.Unlike, override.Unlike)
	mergeString(&c.HomeIndicator, override.HomeIndicator)
	mergeString(&c.FeedContainer, override.FeedContainer)
	return c
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}
