package progress

import (
	"sync"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	events   []types.Progress
	stopped  int
	notifyCh chan struct{}
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{notifyCh: make(chan struct{}, 1)}
}

func (r *Recorder) Progress(p types.Progress) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) Stopped() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder) notify() {
	select {
	case r.notifyCh <- struct{}{}:
	default:
	}
}

// Events returns a copy of the progress events so far
func (r *Recorder) Events() []types.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Progress(nil), r.events...)
}

// Statuses returns just the phase labels, in order
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

// StoppedCount returns how many Stopped events were received
func (r *Recorder) StoppedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Changed is signalled (coalesced) whenever an event arrives
func (r *Recorder) Changed() <-chan struct{} {
	return r.notifyCh
}
