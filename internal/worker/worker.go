// Package worker runs the cleanup loop against one page.
//
// A Controller owns the run state. Exactly one run is active at a time; the run
// goroutine is the only writer of counters and seen-sets, the mutex exists so the
// control surface can read Status from its own goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ibeckermayer/xsweep/internal/executor"
	"github.com/ibeckermayer/xsweep/internal/page"
	"github.com/ibeckermayer/xsweep/internal/progress"
	"github.com/ibeckermayer/xsweep/internal/scanner"
	"github.com/ibeckermayer/xsweep/internal/selectors"
	"github.com/ibeckermayer/xsweep/internal/types"
)

// ErrAlreadyRunning reports a start that was ignored because a run is active.
// The controller itself just returns false; surfaces that answer a caller use it.
var ErrAlreadyRunning = errors.New("a run is already active")

// Loop timings used when Options leaves them unset: how far one scroll moves
// the page in pixels, how long the page gets to render after it, and how often
// a cooldown reports the seconds left.
const (
	DefaultScrollChunk  = 1800
	DefaultScrollSettle = 1500 * time.Millisecond
	DefaultCooldownTick = 250 * time.Millisecond
)

// Phase labels shown to the user
const (
	PhaseStarting = "Starting batch..."
	PhaseScanning = "Scanning..."
	PhaseNoItems  = "No items → scrolling…"
	PhaseUnliking = "Unliking…"
	PhaseUndoing  = "Undoing…"
	PhaseDeleting = "Deleting…"
	PhaseDone     = "Done ✔"
	PhaseFetching = "Fetching more..."
)

// CoolingPhase is the cooldown label for the given whole seconds remaining
func CoolingPhase(remaining int) string {
	return fmt.Sprintf("Cooling %ds…", remaining)
}

// Feed lists and measures items; *scanner.Scanner implements it
type Feed interface {
	ListVisibleItems(ctx context.Context) ([]scanner.Item, error)
	ItemID(ctx context.Context, item scanner.Item) (string, error)
	Position(ctx context.Context, item scanner.Item) (page.Rect, error)
	Viewport(ctx context.Context) (float64, error)
}

// Actor performs the click sequences; *executor.Executor implements it
type Actor interface {
	Delete(ctx context.Context, item page.Handle) (bool, error)
	UndoRepost(ctx context.Context, item page.Handle) (bool, error)
	Unlike(ctx context.Context, item page.Handle) (bool, error)
	CanUnlike(ctx context.Context, item page.Handle) (bool, error)
	CanUndoRepost(ctx context.Context, item page.Handle) (bool, error)
	ItemPause(ctx context.Context) error
}

// Journal records run history. Failures are logged and never stop a run.
type Journal interface {
	RunStarted(ctx context.Context, cfg types.RunConfig, at time.Time) (string, error)
	ActionDone(ctx context.Context, runID string, action types.Action, itemID string) error
	RunEnded(ctx context.Context, runID string, total int, reason string, at time.Time) error
}

// Target is everything one run drives
type Target struct {
	Page  page.Page
	Feed  Feed
	Actor Actor
	Close func() // optional
}

// Opener provides the Target when a run starts
type Opener func(ctx context.Context) (Target, error)

// Static always returns t and never closes it
func Static(t Target) Opener {
	return func(context.Context) (Target, error) {
		t.Close = nil
		return t, nil
	}
}

// NewTarget wires the scanner and executor for p
func NewTarget(p page.Page, c selectors.Catalog, pacing executor.Pacing, logger *zap.Logger) (Target, error) {
	sc, err := scanner.New(p, c)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Page:  p,
		Feed:  sc,
		Actor: executor.New(p, c, pacing, logger),
	}, nil
}

// Options tunes the loop. Zero fields take the defaults.
type Options struct {
	ScrollChunk         int
	ScrollSettle        time.Duration
	CooldownTick        time.Duration
	MaxActionsPerMinute int // 0 disables the ceiling
	Journal             Journal
}

func (o Options) withDefaults() Options {
	if o.ScrollChunk == 0 {
		o.ScrollChunk = DefaultScrollChunk
	}
	if o.ScrollSettle == 0 {
		o.ScrollSettle = DefaultScrollSettle
	}
	if o.CooldownTick == 0 {
		o.CooldownTick = DefaultCooldownTick
	}
	return o
}

// Controller is the run state machine: idle, running, cooling or scrolling, idle
type Controller struct {
	base   context.Context
	open   Opener
	sink   progress.Sink
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex
	running   bool
	stopping  bool
	total     int
	startedAt *time.Time
	current   types.RunConfig
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle controller. Runs are cancelled when ctx is.
func New(ctx context.Context, open Opener, sink progress.Sink, opts Options, logger *zap.Logger) *Controller {
	if sink == nil {
		sink = progress.Nop{}
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		base:   ctx,
		open:   open,
		sink:   sink,
		opts:   opts.withDefaults(),
		logger: logger.Named("worker"),
		done:   done,
	}
}

// Start begins a run with cfg. It returns false, changing nothing, when a run
// is already active or still finishing, the configuration is invalid or the
// controller is shut down.
func (c *Controller) Start(cfg types.RunConfig) bool {
	_, ok := c.StartRun(cfg)
	return ok
}

// StartRun is Start that also returns the channel closed when this run's
// cleanup has finished.
func (c *Controller) StartRun(cfg types.RunConfig) (<-chan struct{}, bool) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		c.logger.Warn("Rejected run configuration", zap.Error(err))
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.logger.Debug("Start ignored, run already active")
		return nil, false
	}
	select {
	case <-c.done:
	default:
		c.logger.Debug("Start ignored, previous run still finishing")
		return nil, false
	}
	if c.base.Err() != nil {
		return nil, false
	}

	ctx, cancel := context.WithCancel(c.base)
	now := time.Now()
	c.running = true
	c.stopping = false
	c.total = 0
	c.startedAt = &now
	c.current = cfg
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, cfg, now, c.done)
	return c.done, true
}

// Stop requests cancellation of the active run. No-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.stopping {
		return
	}
	c.stopping = true
	c.cancel()
}

// Status returns a snapshot of the run state
func (c *Controller) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := types.Status{
		Running: c.running,
		Total:   c.total,
		Current: c.current,
	}
	if c.startedAt != nil {
		t := *c.startedAt
		s.StartedAt = &t
	}
	return s
}

// Done is closed when the current run's cleanup has finished.
// When idle it returns an already-closed channel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current run, if any, has stopped
func (c *Controller) Wait() {
	<-c.Done()
}

func (c *Controller) addTotal() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	return c.total
}

func (c *Controller) run(ctx context.Context, cfg types.RunConfig, startedAt time.Time, done chan struct{}) {
	r := &run{
		c:      c,
		cfg:    cfg,
		logger: c.logger.With(zap.String("mode", string(cfg.Mode)), zap.Int("batch_size", cfg.BatchSize)),
		undo:   seenSet{},
		delete: seenSet{},
		unlike: seenSet{},
	}
	if n := c.opts.MaxActionsPerMinute; n > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run panicked: %v", p)
			r.logger.Error("Run panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
		c.finish(ctx, r, err, done)
	}()

	r.logger.Info("Run started",
		zap.Bool("also_undo_reposts", cfg.AlsoUndoReposts),
		zap.Int("pause_ms", cfg.PauseMs))
	r.journalStart(ctx, startedAt)

	target, err := c.open(ctx)
	if err != nil {
		err = fmt.Errorf("failed to open page: %w", err)
		return
	}
	if target.Close != nil {
		defer target.Close()
	}
	r.target = target

	err = r.loop(ctx)
}

// finish restores the idle state, records the end and emits Stopped. Runs
// exactly once per run. Start is refused until done is closed, so Stopped
// always precedes the next run's events.
func (c *Controller) finish(ctx context.Context, r *run, err error, done chan struct{}) {
	c.mu.Lock()
	stopping := c.stopping
	total := c.total
	c.running = false
	c.stopping = false
	c.startedAt = nil
	c.current = types.RunConfig{}
	c.cancel()
	c.cancel = nil
	c.mu.Unlock()

	reason := "stopped"
	switch {
	case errors.Is(err, context.Canceled) && stopping:
		r.logger.Info("Run stopped", zap.Int("total", total))
	case errors.Is(err, context.Canceled):
		reason = "shutdown"
		r.logger.Info("Run cancelled by shutdown", zap.Int("total", total))
	default:
		reason = fmt.Sprintf("error: %v", err)
		r.logger.Error("Run failed", zap.Int("total", total), zap.Error(err))
	}
	r.journalEnd(ctx, total, reason)

	c.sink.Stopped()
	close(done)
}

// run is the state private to one run
type run struct {
	c       *Controller
	cfg     types.RunConfig
	target  Target
	logger  *zap.Logger
	limiter *rate.Limiter
	runID   string

	inBatch int
	total   int

	undo, delete, unlike seenSet
}

func (r *run) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.inBatch == 0 {
			r.report(PhaseStarting)
		} else {
			r.report(PhaseScanning)
		}

		items, err := r.target.Feed.ListVisibleItems(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			r.report(PhaseNoItems)
			if err := r.scroll(ctx); err != nil {
				return err
			}
			continue
		}

		if err := r.pass(ctx, items); err != nil {
			return err
		}

		if r.inBatch >= r.cfg.BatchSize {
			if err := r.cooldown(ctx); err != nil {
				return err
			}
			r.inBatch = 0
			continue
		}

		r.report(PhaseFetching)
		if err := r.scroll(ctx); err != nil {
			return err
		}
	}
}

// pass walks one scan top to bottom until the batch fills or items leave the window
func (r *run) pass(ctx context.Context, items []scanner.Item) error {
	viewport, err := r.target.Feed.Viewport(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.inBatch >= r.cfg.BatchSize {
			return nil
		}

		rect, err := r.target.Feed.Position(ctx, item)
		if err != nil {
			return err
		}
		if rect.Empty() || rect.Bottom < 0 {
			continue
		}
		if rect.Top > viewport {
			return nil
		}

		id, err := r.target.Feed.ItemID(ctx, item)
		if err != nil {
			return err
		}

		ok, err := r.act(ctx, item.Handle, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		r.inBatch++
		r.total = r.c.addTotal()
		r.report(PhaseDone)
		if err := r.target.Actor.ItemPause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// act applies the mode's policy to one item and reports whether an action succeeded
func (r *run) act(ctx context.Context, h page.Handle, id string) (bool, error) {
	a := r.target.Actor

	if r.cfg.Mode == types.ModeUnlike {
		if r.unlike.has(id) {
			return false, nil
		}
		can, err := a.CanUnlike(ctx, h)
		if err != nil {
			return false, err
		}
		if !can {
			r.unlike.add(id)
			return false, nil
		}
		r.report(PhaseUnliking)
		return r.attempt(ctx, types.ActionUnlike, id, r.unlike, func(ctx context.Context) (bool, error) {
			return a.Unlike(ctx, h)
		})
	}

	if r.cfg.AlsoUndoReposts && !r.undo.has(id) {
		can, err := a.CanUndoRepost(ctx, h)
		if err != nil {
			return false, err
		}
		if can {
			r.report(PhaseUndoing)
			ok, err := r.attempt(ctx, types.ActionUndoRepost, id, r.undo, func(ctx context.Context) (bool, error) {
				return a.UndoRepost(ctx, h)
			})
			if err != nil || ok {
				return ok, err
			}
		}
	}

	if r.delete.has(id) {
		return false, nil
	}
	r.report(PhaseDeleting)
	return r.attempt(ctx, types.ActionDelete, id, r.delete, func(ctx context.Context) (bool, error) {
		return a.Delete(ctx, h)
	})
}

// attempt runs one action and marks id seen for it whatever the outcome.
// Stop is honoured before the first click only; once started, the click
// sequence runs to the end so a completed action is always counted.
func (r *run) attempt(ctx context.Context, action types.Action, id string, seen seenSet, fn func(ctx context.Context) (bool, error)) (bool, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ok, err := fn(context.WithoutCancel(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to %s item %q: %w", action, id, err)
	}
	seen.add(id)

	if !ok {
		r.logger.Debug("Action did not complete", zap.String("action", string(action)), zap.String("item", id))
		return false, nil
	}
	r.journalAction(ctx, action, id)
	return true, nil
}

// cooldown waits out the configured pause in fixed ticks, reporting whole seconds left
func (r *run) cooldown(ctx context.Context) error {
	cool := r.cfg.Pause()
	start := time.Now()
	for {
		left := cool - time.Since(start)
		if left <= 0 {
			return nil
		}
		r.report(CoolingPhase(int((left + time.Second - 1) / time.Second)))
		if err := executor.Sleep(ctx, r.c.opts.CooldownTick); err != nil {
			return err
		}
	}
}

func (r *run) scroll(ctx context.Context) error {
	if err := r.target.Page.ScrollBy(ctx, r.c.opts.ScrollChunk); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return executor.Sleep(ctx, r.c.opts.ScrollSettle)
}

func (r *run) report(status string) {
	r.c.sink.Progress(types.Progress{
		Total:     r.total,
		InBatch:   r.inBatch,
		BatchSize: r.cfg.BatchSize,
		Status:    status,
	})
}

func (r *run) journalStart(ctx context.Context, at time.Time) {
	j := r.c.opts.Journal
	if j == nil {
		return
	}
	id, err := j.RunStarted(context.WithoutCancel(ctx), r.cfg, at)
	if err != nil {
		r.logger.Warn("Failed to record run start", zap.Error(err))
		return
	}
	r.runID = id
	r.logger = r.logger.With(zap.String("run_id", id))
}

func (r *run) journalAction(ctx context.Context, action types.Action, id string) {
	j := r.c.opts.Journal
	if j == nil || r.runID == "" {
		return
	}
	if err := j.ActionDone(context.WithoutCancel(ctx), r.runID, action, id); err != nil {
		r.logger.Warn("Failed to record action", zap.String("action", string(action)), zap.Error(err))
	}
}

func (r *run) journalEnd(ctx context.Context, total int, reason string) {
	j := r.c.opts.Journal
	if j == nil || r.runID == "" {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.RunEnded(jctx, r.runID, total, reason, time.Now()); err != nil {
		r.logger.Warn("Failed to record run end", zap.Error(err))
	}
}

// seenSet holds item ids already attempted for one action kind.
// Items without an id are never remembered.
type seenSet map[string]struct{}

func (s seenSet) has(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

func (s seenSet) add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}
