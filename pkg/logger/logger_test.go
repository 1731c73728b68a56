package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/logger"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults to JSON at info level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf))

		log.Debug("hidden")
		assert.Zero(t, buf.Len())

		log.Info("visible", slog.String("key", "value"))
		record := logLine(t, &buf)
		assert.Equal(t, "visible", record["msg"])
		assert.Equal(t, "value", record["key"])
	})

	t.Run("level threshold is honored", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))

		log.Info("hidden")
		assert.Zero(t, buf.Len())

		log.Warn("visible")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("text format emits key=value pairs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))

		log.Info("hello", slog.Int("count", 3))
		out := buf.String()
		assert.Contains(t, out, "msg=hello")
		assert.Contains(t, out, "count=3")
		assert.False(t, strings.HasPrefix(out, "{"))
	})

	t.Run("service attribute appears on every record", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithService("billingd"))

		log.Info("first")
		record := logLine(t, &buf)
		assert.Equal(t, "billingd", record["service"])
	})

	t.Run("development option enables debug text logs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithDevelopment())

		log.Debug("dev detail")
		assert.Contains(t, buf.String(), "dev detail")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		require.Panics(t, func() {
			logger.New(logger.WithFormat(logger.Format("xml")))
		})
	})
}
