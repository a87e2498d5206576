package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/types"
	"github.com/ibeckermayer/xsweep/internal/worker"
)

// fakeRunner is a run that lasts until stopped or until finish is called
type fakeRunner struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
	started []types.RunConfig
	stops   int
}

func (f *fakeRunner) StartRun(cfg types.RunConfig) (<-chan struct{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, false
	}
	f.running = true
	f.done = make(chan struct{})
	f.started = append(f.started, cfg)
	return f.done, true
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.finish()
}

func (f *fakeRunner) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.running = false
		close(f.done)
	}
}


var cfg = types.RunConfig{Mode: types.ModeDelete, BatchSize: 5, PauseMs: 3000}

func TestCleanupJobStopsAfterDuration(t *testing.T) {
	r := &fakeRunner{}
	start := time.Now()
	err := CleanupJob(r, cfg, 50*time.Millisecond)(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, []types.RunConfig{cfg}, r.started)
	assert.Equal(t, 1, r.stops)
}

func TestCleanupJobEndsWithRun(t *testing.T) {
	r := &fakeRunner{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.finish()
	}()
	err := CleanupJob(r, cfg, time.Hour)(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.stops)
}

func TestCleanupJobHonoursContext(t *testing.T) {
	r := &fakeRunner{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, CleanupJob(r, cfg, time.Hour)(ctx))
	assert.Equal(t, 1, r.stops)
}

// restart ends the current run and immediately starts another one
func (f *fakeRunner) restart(cfg types.RunConfig) {
	f.finish()
	f.StartRun(cfg)
}

func TestCleanupJobIgnoresLaterRun(t *testing.T) {
	r := &fakeRunner{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.restart(cfg)
	}()
	require.NoError(t, CleanupJob(r, cfg, time.Hour)(context.Background()))

	// the job saw its own run end and left the newer run alone
	assert.Zero(t, r.stops)
	r.mu.Lock()
	assert.True(t, r.running)
	assert.Len(t, r.started, 2)
	r.mu.Unlock()
	r.finish()
}

func TestCleanupJobSkipsWhenBusy(t *testing.T) {
	r := &fakeRunner{}
	_, ok := r.StartRun(cfg)
	require.True(t, ok)
	err := CleanupJob(r, cfg, time.Millisecond)(context.Background())
	assert.ErrorIs(t, err, worker.ErrAlreadyRunning)
	r.finish()
}

func TestAddListRemove(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	require.NoError(t, s.AddCleanupJob("0 3 * * *", &fakeRunner{}, cfg, time.Minute))
	assert.Error(t, s.AddJob("bad", "not a schedule", time.Minute, func(context.Context) error { return nil }))

	s.Start()
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, CleanupJobName, jobs[0].Name)
	assert.Equal(t, 3, jobs[0].NextRun.In(time.UTC).Hour())

	s.RemoveJob(CleanupJobName)
	assert.Empty(t, s.ListJobs())
}

func TestScheduledJobFires(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	var fired atomic.Int32
	require.NoError(t, s.AddJob("tick", "@every 1s", time.Second, func(context.Context) error {
		fired.Add(1)
		return nil
	}))
	s.Start()
	require.Eventually(t, func() bool { return fired.Load() > 0 }, 3*time.Second, 10*time.Millisecond)
	<-s.Stop().Done()
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	entered := make(chan struct{})
	var once sync.Once
	require.NoError(t, s.AddJob("long", "@every 1s", time.Hour, func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the running job")
	}
}

func TestRunNow(t *testing.T) {
	s := New(time.UTC, zap.NewNop())
	r := &fakeRunner{}
	require.NoError(t, s.RunNow(CleanupJobName, time.Minute, CleanupJob(r, cfg, time.Millisecond)))
	assert.Len(t, r.started, 1)
}
