package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ibeckermayer/xsweep/internal/config"
)

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, done, err := New(config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Named("worker").Debug("Run started")
	done()

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "xsweep.worker.")
	assert.Contains(t, out, "Run started")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, done, err := New(config.LoggingConfig{Level: "warn"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	done()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xsweep.log")
	var console bytes.Buffer
	logger, done, err := New(config.LoggingConfig{
		Level:     "info",
		Format:    "console",
		File:      path,
		MaxSizeMB: 1,
	}, zapcore.AddSync(&console))
	require.NoError(t, err)

	logger.Info("Run stopped")
	log.Print("from chromedp")
	done()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var messages []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		assert.Equal(t, "INFO", entry["level"])
		messages = append(messages, entry["msg"].(string))
	}
	assert.Equal(t, []string{"Run stopped", "from chromedp"}, messages)
}
