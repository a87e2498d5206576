package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfigNormalize(t *testing.T) {
	t.Run("fills mode and batch size", func(t *testing.T) {
		c := RunConfig{}.Normalize()
		assert.Equal(t, ModeDelete, c.Mode)
		assert.Equal(t, DefaultBatchSize, c.BatchSize)
		assert.Equal(t, 0, c.PauseMs, "zero pause is a valid choice and is kept")
	})

	t.Run("undo reposts only survives in delete mode", func(t *testing.T) {
		c := RunConfig{Mode: ModeUnlike, AlsoUndoReposts: true, BatchSize: 3}.Normalize()
		assert.False(t, c.AlsoUndoReposts)

		c = RunConfig{Mode: ModeDelete, AlsoUndoReposts: true, BatchSize: 3}.Normalize()
		assert.True(t, c.AlsoUndoReposts)
	})
}

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{Mode: ModeUnlike, BatchSize: 1, PauseMs: 0}
	require.NoError(t, valid.Validate())

	cases := map[string]RunConfig{
		"unknown mode":   {Mode: "retweet", BatchSize: 1},
		"zero batch":     {Mode: ModeDelete, BatchSize: 0},
		"negative pause": {Mode: ModeDelete, BatchSize: 1, PauseMs: -1},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("unlike")
	require.NoError(t, err)
	assert.Equal(t, ModeUnlike, m)

	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStatusElapsed(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "00:00", Status{}.Elapsed(now))

	started := now.Add(-(3*time.Minute + 7*time.Second))
	assert.Equal(t, "03:07", Status{Running: true, StartedAt: &started}.Elapsed(now))
}
