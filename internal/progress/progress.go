// Package progress carries run events from the controller to whoever is watching.
// Delivery is fire-and-forget: sinks must not block the controller.
package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// Sink receives run events
type Sink interface {
	Progress(p types.Progress)
	Stopped()
}

// Nop discards every event
type Nop struct{}

func (Nop) Progress(types.Progress) {}
func (Nop) Stopped()                {}

// Multi fans events out to every sink in order
type Multi []Sink

func (m Multi) Progress(p types.Progress) {
	for _, s := range m {
		s.Progress(p)
	}
}

func (m Multi) Stopped() {
	for _, s := range m {
		s.Stopped()
	}
}

// LogSink writes events to a zap logger. Repeated identical phases are logged at debug.
type LogSink struct {
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("progress")}
}

func (s *LogSink) Progress(p types.Progress) {
	s.mu.Lock()
	repeat := p.Status == s.last
	s.last = p.Status
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Int("total", p.Total),
		zap.Int("in_batch", p.InBatch),
		zap.Int("batch_size", p.BatchSize),
	}
	if repeat {
		s.logger.Debug(p.Status, fields...)
		return
	}
	s.logger.Info(p.Status, fields...)
}

func (s *LogSink) Stopped() {
	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()
	s.logger.Info("Run stopped")
}

// Func adapts plain functions to a Sink; nil fields are skipped
type Func struct {
	OnProgress func(types.Progress)
	OnStopped  func()
}

func (f Func) Progress(p types.Progress) {
	if f.OnProgress != nil {
		f.OnProgress(p)
	}
}

func (f Func) Stopped() {
	if f.OnStopped != nil {
		f.OnStopped()
	}
}
