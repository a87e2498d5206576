package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// Latest remembers the most recent progress event of the active run
type Latest struct {
	mu   sync.Mutex
	last *types.Progress
}

func (l *Latest) Progress(p types.Progress) {
	l.mu.Lock()
	l.last = &p
	l.mu.Unlock()
}

func (l *Latest) Stopped() {
	l.mu.Lock()
	l.last = nil
	l.mu.Unlock()
}

// Get returns the last event, or false between runs
func (l *Latest) Get() (types.Progress, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return types.Progress{}, false
	}
	return *l.last, true
}

// Line renders a one-line summary for a menu or a terminal
func Line(st types.Status, last types.Progress, haveLast bool, now time.Time) string {
	if !st.Running {
		if st.Total > 0 {
			return fmt.Sprintf("Idle · %d cleaned last run", st.Total)
		}
		return "Idle"
	}
	phase := "Starting batch..."
	if haveLast {
		phase = last.Status
	}
	line := fmt.Sprintf("%s · %d total", phase, st.Total)
	if haveLast && last.BatchSize > 0 {
		line += fmt.Sprintf(" · batch %d/%d", last.InBatch, last.BatchSize)
	}
	return line + " · " + st.Elapsed(now)
}
