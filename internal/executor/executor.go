// Package executor performs the multi-step click sequences against one feed item.
//
// Every action returns (ok, err). A missing element is the normal way for an
// action to fail and is reported as ok=false with a nil error; err is reserved
// for cancellation and for losing the page.
package executor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/locator"
	"github.com/ibeckermayer/xsweep/internal/page"
	"github.com/ibeckermayer/xsweep/internal/selectors"
)

// Executor runs delete, undo-repost and unlike against items on one page
type Executor struct {
	page   page.Page
	pacing Pacing
	logger *zap.Logger

	moreButton []locator.Strategy
	deleteItem []locator.Strategy
	confirm    []locator.Strategy

	unretweet        locator.Strategy
	unretweetConfirm locator.Strategy
	unlike           locator.Strategy
}

// New builds the lookup strategies for the catalog
func New(p page.Page, c selectors.Catalog, pacing Pacing, logger *zap.Logger) *Executor {
	more := locator.Selectors(c.MoreButton...)
	moreButton := append(append([]locator.Strategy{}, more...),
		locator.Within{Scope: c.ActionGroup, Inner: more},
		locator.Ancestor{Selector: c.TweetContainer, Inner: more},
	)

	confirm := append(locator.Selectors(c.ConfirmButtons...), locator.Text{
		Scopes:     c.Dialogs,
		Candidates: c.DialogText,
		Labels:     c.DeleteLabels,
		Prefer:     c.Button,
	})

	return &Executor{
		page:       p,
		pacing:     pacing,
		logger:     logger.Named("executor"),
		moreButton: moreButton,
		deleteItem: []locator.Strategy{locator.Text{
			Candidates: c.MenuCandidates,
			Labels:     c.DeleteLabels,
			Prefer:     c.MenuItem,
		}},
		confirm:          confirm,
		unretweet:        locator.Selector(c.Unretweet),
		unretweetConfirm: locator.Selector(c.UnretweetConfirm),
		unlike:           locator.Selector(c.Unlike),
	}
}

// Delete opens the item's overflow menu, picks Delete and confirms.
// Any overlay left open by a failed step is dismissed before returning.
func (e *Executor) Delete(ctx context.Context, item page.Handle) (bool, error) {
	ok, err := e.step(ctx, item, "open menu", e.moreButton)
	if err != nil || !ok {
		return false, err
	}

	ok, err = e.step(ctx, page.Document, "choose delete", e.deleteItem)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, e.dismiss(ctx)
	}

	ok, err = e.step(ctx, page.Document, "confirm delete", e.confirm)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, e.dismiss(ctx)
	}
	return true, nil
}

// UndoRepost toggles the item's repost off and confirms.
// This is a direct toggle, not a menu, so there is nothing to dismiss on failure.
func (e *Executor) UndoRepost(ctx context.Context, item page.Handle) (bool, error) {
	ok, err := e.step(ctx, item, "undo repost", []locator.Strategy{e.unretweet})
	if err != nil || !ok {
		return false, err
	}
	return e.step(ctx, page.Document, "confirm undo repost", []locator.Strategy{e.unretweetConfirm})
}

// Unlike clicks the item's unlike control
func (e *Executor) Unlike(ctx context.Context, item page.Handle) (bool, error) {
	return e.step(ctx, item, "unlike", []locator.Strategy{e.unlike})
}

// CanUnlike reports whether the item is currently liked
func (e *Executor) CanUnlike(ctx context.Context, item page.Handle) (bool, error) {
	return locator.Exists(ctx, e.page, item, e.unlike)
}

// CanUndoRepost reports whether the item is currently reposted by the user
func (e *Executor) CanUndoRepost(ctx context.Context, item page.Handle) (bool, error) {
	return locator.Exists(ctx, e.page, item, e.unretweet)
}

// step locates a target under root, clicks it and pauses.
// A target that disappears between lookup and click counts as absent.
func (e *Executor) step(ctx context.Context, root page.Handle, name string, strategies []locator.Strategy) (bool, error) {
	h, ok, err := locator.FindFirst(ctx, e.page, root, strategies...)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Debug("Target not found", zap.String("step", name))
		return false, nil
	}

	if err := e.page.Click(ctx, h); err != nil {
		if errors.Is(err, page.ErrDetached) {
			e.logger.Debug("Target detached before click", zap.String("step", name))
			return false, nil
		}
		return false, err
	}

	if err := SleepJittered(ctx, e.pacing.Step); err != nil {
		return false, err
	}
	return true, nil
}

// dismiss clicks outside any open menu or dialog
func (e *Executor) dismiss(ctx context.Context) error {
	if err := e.page.DismissOverlays(ctx); err != nil {
		return err
	}
	return Sleep(ctx, e.pacing.Dismiss)
}

// ItemPause is the jittered pause between two successful actions
func (e *Executor) ItemPause(ctx context.Context) error {
	return SleepJittered(ctx, e.pacing.Item)
}
