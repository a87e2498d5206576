package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/executor"
	"github.com/ibeckermayer/xsweep/internal/page"
	"github.com/ibeckermayer/xsweep/internal/page/pagetest"
	"github.com/ibeckermayer/xsweep/internal/progress"
	"github.com/ibeckermayer/xsweep/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fastPacing = executor.Pacing{Step: time.Millisecond, Item: time.Millisecond, Dismiss: time.Millisecond}

var fastOptions = Options{
	ScrollSettle: time.Millisecond,
	CooldownTick: 10 * time.Millisecond,
}

// countingActor wraps a real Actor and records every call by item
type countingActor struct {
	Actor

	mu    sync.Mutex
	calls []string
}

func (a *countingActor) log(name string) {
	a.mu.Lock()
	a.calls = append(a.calls, name)
	a.mu.Unlock()
}

func (a *countingActor) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *countingActor) count(name string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (a *countingActor) Delete(ctx context.Context, h page.Handle) (bool, error) {
	a.log("delete")
	return a.Actor.Delete(ctx, h)
}

func (a *countingActor) UndoRepost(ctx context.Context, h page.Handle) (bool, error) {
	a.log("undo")
	return a.Actor.UndoRepost(ctx, h)
}

func (a *countingActor) Unlike(ctx context.Context, h page.Handle) (bool, error) {
	a.log("unlike")
	return a.Actor.Unlike(ctx, h)
}

func (a *countingActor) CanUnlike(ctx context.Context, h page.Handle) (bool, error) {
	a.log("can-unlike")
	return a.Actor.CanUnlike(ctx, h)
}

type harness struct {
	feed  *pagetest.Feed
	actor *countingActor
	rec   *progress.Recorder
	ctrl  *Controller
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newPacedHarness(t, opts, fastPacing)
}

func newPacedHarness(t *testing.T, opts Options, pacing executor.Pacing) *harness {
	t.Helper()
	f := pagetest.NewFeed()
	target, err := NewTarget(f, f.Catalog, pacing, zap.NewNop())
	require.NoError(t, err)
	actor := &countingActor{Actor: target.Actor}
	target.Actor = actor

	rec := progress.NewRecorder()
	ctrl := New(context.Background(), Static(target), rec, opts, zap.NewNop())
	t.Cleanup(func() {
		ctrl.Stop()
		ctrl.Wait()
	})
	return &harness{feed: f, actor: actor, rec: rec, ctrl: ctrl}
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.ctrl.Stop()
	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}
}

func countStatus(statuses []string, want string) int {
	n := 0
	for _, s := range statuses {
		if s == want {
			n++
		}
	}
	return n
}

func TestStartStopLifecycle(t *testing.T) {
	h := newHarness(t, fastOptions)

	assert.Equal(t, types.Status{}, h.ctrl.Status())

	cfg := types.RunConfig{Mode: types.ModeDelete, BatchSize: 3, PauseMs: 0}
	require.True(t, h.ctrl.Start(cfg))

	s := h.ctrl.Status()
	assert.True(t, s.Running)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, cfg, s.Current)

	h.stop(t)

	s = h.ctrl.Status()
	assert.False(t, s.Running)
	assert.Nil(t, s.StartedAt)
	assert.Equal(t, types.RunConfig{}, s.Current)
	assert.Equal(t, 1, h.rec.StoppedCount())

	// a new run may start once the previous one is idle
	require.True(t, h.ctrl.Start(cfg))
	h.stop(t)
	assert.Equal(t, 2, h.rec.StoppedCount())
}

func TestStartWhileRunningIsIgnored(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	require.Eventually(t, func() bool { return h.ctrl.Status().Total == 1 }, 5*time.Second, time.Millisecond)

	before := h.ctrl.Status()
	assert.False(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeUnlike, BatchSize: 1}))

	after := h.ctrl.Status()
	assert.Equal(t, before.StartedAt, after.StartedAt)
	assert.Equal(t, 1, after.Total)
	assert.Equal(t, types.ModeDelete, after.Current.Mode)

	h.stop(t)
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	h := newHarness(t, fastOptions)
	assert.False(t, h.ctrl.Start(types.RunConfig{Mode: "retweet"}))
	assert.False(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: -1}))
	assert.False(t, h.ctrl.Status().Running)
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.ctrl.Stop()
	h.ctrl.Wait()
	assert.Zero(t, h.rec.StoppedCount())
}

func TestEmptyFeedScrollsWithoutCounting(t *testing.T) {
	h := newHarness(t, fastOptions)

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 1}))
	require.Eventually(t, func() bool { return len(h.feed.Scrolls()) >= 3 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	statuses := h.rec.Statuses()
	assert.Positive(t, countStatus(statuses, PhaseNoItems))
	for _, s := range statuses {
		assert.False(t, strings.HasPrefix(s, "Cooling"), "unexpected cooldown: %s", s)
	}
	for _, e := range h.rec.Events() {
		assert.Zero(t, e.Total)
		assert.Zero(t, e.InBatch)
	}
	for _, dy := range h.feed.Scrolls() {
		assert.Equal(t, DefaultScrollChunk, dy)
	}
	assert.Empty(t, h.feed.Clicks())
}

func TestFullBatchThenCooldown(t *testing.T) {
	opts := fastOptions
	opts.CooldownTick = 100 * time.Millisecond
	h := newHarness(t, opts)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0})
	h.feed.Add(pagetest.Tweet{ID: "2", Top: 100})
	h.feed.Add(pagetest.Tweet{ID: "3", Top: 200})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 2, PauseMs: 1500}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 3 }, 10*time.Second, 5*time.Millisecond)
	h.stop(t)

	assert.Equal(t, []string{"1", "2", "3"}, h.feed.Deleted())

	events := h.rec.Events()
	var cooling []string
	firstCool, resumed := -1, -1
	for i, e := range events {
		if strings.HasPrefix(e.Status, "Cooling") {
			if firstCool < 0 {
				firstCool = i
			}
			assert.Equal(t, 2, e.InBatch)
			if len(cooling) == 0 || cooling[len(cooling)-1] != e.Status {
				cooling = append(cooling, e.Status)
			}
			continue
		}
		if firstCool >= 0 && resumed < 0 {
			resumed = i
		}
	}
	assert.Empty(t, cmp.Diff([]string{CoolingPhase(2), CoolingPhase(1)}, cooling))
	require.Positive(t, resumed)
	assert.Equal(t, PhaseStarting, events[resumed].Status)
	assert.Zero(t, events[resumed].InBatch)
	assert.Equal(t, 2, events[resumed].Total)
}

func TestBatchAndTotalAccounting(t *testing.T) {
	h := newHarness(t, fastOptions)
	for i, id := range []string{"1", "2", "3", "4", "5"} {
		h.feed.Add(pagetest.Tweet{ID: id, Top: float64(i * 100)})
	}

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 2, PauseMs: 0}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 5 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	prev := 0
	for _, e := range h.rec.Events() {
		assert.LessOrEqual(t, e.InBatch, 2)
		assert.GreaterOrEqual(t, e.Total, prev)
		if e.Status == PhaseDone {
			assert.Equal(t, prev+1, e.Total, "each success adds exactly one")
		} else {
			assert.Equal(t, prev, e.Total)
		}
		prev = e.Total
	}
	assert.Equal(t, 5, prev)
	assert.Equal(t, 5, countStatus(h.rec.Statuses(), PhaseDone))
	assert.Equal(t, 5, h.ctrl.Status().Total, "total survives until the next start")
}

func TestFailedDeleteIsNotRetried(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0, NoConfirm: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Scrolls()) >= 3 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, 1, h.actor.count("delete"))
	assert.Equal(t, 1, h.feed.Dismissals())
	assert.Empty(t, h.feed.Deleted())
	assert.Zero(t, h.ctrl.Status().Total)
}

func TestItemsWithoutIDAreRetried(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{Top: 0, NoConfirm: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	require.Eventually(t, func() bool { return h.actor.count("delete") >= 2 }, 5*time.Second, time.Millisecond)
	h.stop(t)
}

func TestUnlikeSkipsItemWithoutControl(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "42", Top: 0})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeUnlike, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Scrolls()) >= 3 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, 1, h.actor.count("can-unlike"), "later passes skip without checking again")
	assert.Zero(t, h.actor.count("unlike"))
	assert.Zero(t, h.ctrl.Status().Total)
	assert.Zero(t, countStatus(h.rec.Statuses(), PhaseUnliking))
}

func TestUnlikeMode(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0, Liked: true})
	h.feed.Add(pagetest.Tweet{ID: "2", Top: 100, Liked: true})
	h.feed.Add(pagetest.Tweet{ID: "3", Top: 200, Liked: true, Reposted: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeUnlike, AlsoUndoReposts: true, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Unliked()) == 3 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, []string{"1", "2", "3"}, h.feed.Unliked())
	assert.Empty(t, h.feed.Unreposted(), "undo reposts only applies to delete mode")
	assert.Empty(t, h.feed.Deleted())
}

func TestUndoRepostTakesPriorityOverDelete(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0, Reposted: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, AlsoUndoReposts: true, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 1 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, []string{"1"}, h.feed.Unreposted())
	assert.Empty(t, cmp.Diff([]string{"undo", "delete"}, h.actor.Calls()))

	// the delete happens on a later pass, never in the pass that undid the repost
	statuses := h.rec.Statuses()
	undo := indexOf(statuses, PhaseUndoing, 0)
	del := indexOf(statuses, PhaseDeleting, 0)
	require.True(t, undo >= 0 && del > undo)
	between := statuses[undo:del]
	assert.True(t, countStatus(between, PhaseScanning)+countStatus(between, PhaseStarting) > 0,
		"expected a new scan between undo and delete: %v", between)
	assert.Equal(t, 2, h.ctrl.Status().Total)
}

func TestFailedUndoFallsThroughToDelete(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0, Reposted: true, NoUnretweetConfirm: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, AlsoUndoReposts: true, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 1 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Empty(t, cmp.Diff([]string{"undo", "delete"}, h.actor.Calls()))
	assert.Equal(t, 1, h.ctrl.Status().Total)
}

func TestItemsOutsideViewport(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.SetViewport(500)
	h.feed.Add(pagetest.Tweet{ID: "above", Top: -300})
	h.feed.Add(pagetest.Tweet{ID: "visible", Top: 100})
	h.feed.Add(pagetest.Tweet{ID: "below", Top: 800})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Scrolls()) >= 2 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, []string{"visible"}, h.feed.Deleted())
}

func TestPageFailureEndsRun(t *testing.T) {
	h := newHarness(t, fastOptions)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0})
	h.feed.FailWith(errors.New("target closed"))

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not end")
	}
	assert.False(t, h.ctrl.Status().Running)
	assert.Equal(t, 1, h.rec.StoppedCount())
}

type panicActor struct{ Actor }

func (panicActor) Delete(context.Context, page.Handle) (bool, error) {
	panic("boom")
}

func TestPanicStillCleansUp(t *testing.T) {
	f := pagetest.NewFeed()
	f.Add(pagetest.Tweet{ID: "1", Top: 0})
	target, err := NewTarget(f, f.Catalog, fastPacing, zap.NewNop())
	require.NoError(t, err)
	target.Actor = panicActor{target.Actor}

	rec := progress.NewRecorder()
	ctrl := New(context.Background(), Static(target), rec, fastOptions, zap.NewNop())

	require.True(t, ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	ctrl.Wait()

	assert.False(t, ctrl.Status().Running)
	assert.Equal(t, 1, rec.StoppedCount())
}

func TestOpenFailureStops(t *testing.T) {
	rec := progress.NewRecorder()
	open := func(context.Context) (Target, error) { return Target{}, errors.New("no chrome") }
	ctrl := New(context.Background(), open, rec, fastOptions, zap.NewNop())

	require.True(t, ctrl.Start(types.RunConfig{Mode: types.ModeDelete}))
	ctrl.Wait()
	assert.Equal(t, 1, rec.StoppedCount())
	assert.False(t, ctrl.Status().Running)
}

func TestBaseContextCancelsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := pagetest.NewFeed()
	target, err := NewTarget(f, f.Catalog, fastPacing, zap.NewNop())
	require.NoError(t, err)

	closed := make(chan struct{})
	open := func(context.Context) (Target, error) {
		tg := target
		tg.Close = func() { close(closed) }
		return tg, nil
	}
	rec := progress.NewRecorder()
	ctrl := New(ctx, open, rec, fastOptions, zap.NewNop())

	require.True(t, ctrl.Start(types.RunConfig{Mode: types.ModeDelete}))
	cancel()
	ctrl.Wait()
	<-closed

	assert.Equal(t, 1, rec.StoppedCount())
	assert.False(t, ctrl.Start(types.RunConfig{Mode: types.ModeDelete}), "shut down controllers refuse new runs")
}

type memJournal struct {
	mu      sync.Mutex
	started []types.RunConfig
	actions []types.Action
	ended   []string
	total   int
}

func (j *memJournal) RunStarted(_ context.Context, cfg types.RunConfig, _ time.Time) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, cfg)
	return "run-1", nil
}

func (j *memJournal) ActionDone(_ context.Context, runID string, action types.Action, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.actions = append(j.actions, action)
	return nil
}

func (j *memJournal) RunEnded(_ context.Context, _ string, total int, reason string, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ended = append(j.ended, reason)
	j.total = total
	return nil
}

func TestJournalRecordsRun(t *testing.T) {
	j := &memJournal{}
	opts := fastOptions
	opts.Journal = j
	h := newHarness(t, opts)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0, Reposted: true})

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, AlsoUndoReposts: true, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 1 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Len(t, j.started, 1)
	assert.Equal(t, []types.Action{types.ActionUndoRepost, types.ActionDelete}, j.actions)
	assert.Equal(t, []string{"stopped"}, j.ended)
	assert.Equal(t, 2, j.total)
}

func TestStopMidDeleteFinishesAndCounts(t *testing.T) {
	j := &memJournal{}
	opts := fastOptions
	opts.Journal = j
	slow := executor.Pacing{Step: 100 * time.Millisecond, Item: 100 * time.Millisecond, Dismiss: time.Millisecond}
	h := newPacedHarness(t, opts, slow)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0})
	h.feed.Add(pagetest.Tweet{ID: "2", Top: 150})

	overlays := func(selector string) int {
		found, _ := h.feed.QueryAll(context.Background(), page.Document, selector)
		return len(found)
	}

	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	// the confirm dialog is up and the executor is sleeping before its click
	require.Eventually(t, func() bool { return overlays(h.feed.Catalog.Dialogs[0]) == 1 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.Equal(t, []string{"1"}, h.feed.Deleted())
	assert.Equal(t, len(h.feed.Deleted()), h.ctrl.Status().Total)
	assert.Zero(t, overlays(`[role="menu"]`))
	assert.Zero(t, overlays(h.feed.Catalog.Dialogs[0]))

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Equal(t, []types.Action{types.ActionDelete}, j.actions)
	assert.Equal(t, 1, j.total)
}

// slowJournal takes its time recording the end of a run
type slowJournal struct {
	memJournal
	delay time.Duration
}

func (j *slowJournal) RunEnded(ctx context.Context, runID string, total int, reason string, at time.Time) error {
	time.Sleep(j.delay)
	return j.memJournal.RunEnded(ctx, runID, total, reason, at)
}

func TestRestartWaitsForPreviousRunCleanup(t *testing.T) {
	f := pagetest.NewFeed()
	target, err := NewTarget(f, f.Catalog, fastPacing, zap.NewNop())
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []string
	)
	note := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	sink := progress.Func{
		OnProgress: func(types.Progress) { note("progress") },
		OnStopped:  func() { note("stopped") },
	}

	j := &slowJournal{delay: 300 * time.Millisecond}
	opts := fastOptions
	opts.Journal = j
	ctrl := New(context.Background(), Static(target), sink, opts, zap.NewNop())
	t.Cleanup(func() {
		ctrl.Stop()
		ctrl.Wait()
	})

	cfg := types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}
	done, ok := ctrl.StartRun(cfg)
	require.True(t, ok)
	ctrl.Stop()
	require.Eventually(t, func() bool { return !ctrl.Status().Running }, 5*time.Second, time.Millisecond)

	// the run reads idle while its end is still being recorded
	select {
	case <-done:
		t.Fatal("run finished before its journal entry was written")
	default:
	}
	assert.False(t, ctrl.Start(cfg))

	<-done
	note("restart")
	second, ok := ctrl.StartRun(cfg)
	require.True(t, ok)
	ctrl.Stop()
	<-second

	mu.Lock()
	defer mu.Unlock()
	first := indexOf(events, "stopped", 0)
	require.NotEqual(t, -1, first)
	assert.Less(t, first, indexOf(events, "restart", 0))
	assert.Equal(t, 2, countStatus(events, "stopped"))
	assert.Equal(t, "stopped", events[len(events)-1])

	j.mu.Lock()
	defer j.mu.Unlock()
	assert.Equal(t, []string{"stopped", "stopped"}, j.ended)
}

func TestRateCeilingSpacesActions(t *testing.T) {
	opts := fastOptions
	opts.MaxActionsPerMinute = 600 // one every 100ms
	h := newHarness(t, opts)
	h.feed.Add(pagetest.Tweet{ID: "1", Top: 0})
	h.feed.Add(pagetest.Tweet{ID: "2", Top: 100})
	h.feed.Add(pagetest.Tweet{ID: "3", Top: 200})

	start := time.Now()
	require.True(t, h.ctrl.Start(types.RunConfig{Mode: types.ModeDelete, BatchSize: 5}))
	require.Eventually(t, func() bool { return len(h.feed.Deleted()) == 3 }, 5*time.Second, time.Millisecond)
	h.stop(t)

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func indexOf(s []string, want string, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == want {
			return i
		}
	}
	return -1
}
