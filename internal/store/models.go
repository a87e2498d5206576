package store

import (
	"time"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// Run is one journaled cleanup run
type Run struct {
	ID        string          `json:"id"`
	Config    types.RunConfig `json:"config"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Total     int             `json:"total"`
	Reason    string          `json:"reason"`

	// Successful actions by kind
	Deleted    int `json:"deleted"`
	Unreposted int `json:"unreposted"`
	Unliked    int `json:"unliked"`
}

// Duration is how long the run went on; zero while it is still open
func (r Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Totals sums actions over every run in the history
type Totals struct {
	Runs       int `json:"runs"`
	Deleted    int `json:"deleted"`
	Unreposted int `json:"unreposted"`
	Unliked    int `json:"unliked"`
}
