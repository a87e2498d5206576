package types

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects which action a run performs on each feed item
type Mode string

const (
	ModeDelete Mode = "delete"
	ModeUnlike Mode = "unlike"
)

// Defaults used when a start request leaves a field unset
const (
	DefaultBatchSize = 5
	DefaultPauseMs   = 3000
)

// ErrInvalidConfig is returned by RunConfig.Validate
var ErrInvalidConfig = errors.New("invalid run configuration")

// ParseMode converts user input into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDelete, ModeUnlike:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// RunConfig is the immutable configuration of one run
type RunConfig struct {
	Mode            Mode `json:"mode" toml:"mode"`
	AlsoUndoReposts bool `json:"alsoUndoReposts" toml:"also_undo_reposts"`
	BatchSize       int  `json:"batchSize" toml:"batch_size"`
	PauseMs         int  `json:"pauseMs" toml:"pause_ms"`
}

// Normalize fills defaults and drops AlsoUndoReposts outside delete mode.
// PauseMs is left alone: 0 means no cooldown. DefaultPauseMs is applied by
// the config file and the CLI instead.
func (c RunConfig) Normalize() RunConfig {
	if c.Mode == "" {
		c.Mode = ModeDelete
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Mode != ModeDelete {
		c.AlsoUndoReposts = false
	}
	return c
}

// Validate rejects configurations the controller cannot run
func (c RunConfig) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.PauseMs < 0 {
		return fmt.Errorf("%w: pause must not be negative, got %d", ErrInvalidConfig, c.PauseMs)
	}
	return nil
}

// Pause returns the cooldown duration
func (c RunConfig) Pause() time.Duration {
	return time.Duration(c.PauseMs) * time.Millisecond
}

// Progress is a snapshot emitted at every phase change and after every successful action
type Progress struct {
	Total     int    `json:"total"`
	InBatch   int    `json:"inBatch"`
	BatchSize int    `json:"batchSize"`
	Status    string `json:"status"`
}

// Status answers a getStatus query. Current is the zero RunConfig when idle.
type Status struct {
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Total     int        `json:"total"`
	Current   RunConfig  `json:"current"`
}

// Elapsed formats the time since StartedAt as mm:ss, or 00:00 when idle.
func (s Status) Elapsed(now time.Time) string {
	if s.StartedAt == nil {
		return "00:00"
	}
	secs := int(now.Sub(*s.StartedAt) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Action names one kind of cleanup click sequence
type Action string

const (
	ActionDelete     Action = "delete"
	ActionUndoRepost Action = "undo_repost"
	ActionUnlike     Action = "unlike"
)
