package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotside-studios/cgm-agent/config"
)

func newDiscardHistory(capacity int) (*slog.Logger, *History) {
	h := NewHistory(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}), HistoryPolicy{Capacity: capacity})
	return slog.New(h), h
}

func TestHistory_KeepsLastN(t *testing.T) {
	logger, history := newDiscardHistory(3)

	for i := 0; i < 5; i++ {
		logger.Info(fmt.Sprintf("msg %d", i))
	}

	entries := history.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "msg 2", entries[0].Message)
	assert.Equal(t, "msg 4", entries[2].Message)
	assert.Equal(t, 3, history.Capacity())
}

func TestHistory_PartiallyFilled(t *testing.T) {
	logger, history := newDiscardHistory(10)
	logger.Warn("one")
	logger.Error("two")

	entries := history.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0].Level)
	assert.Equal(t, "ERROR", entries[1].Level)
}

func TestHistory_Attrs(t *testing.T) {
	logger, history := newDiscardHistory(4)

	logger.With("component", "decoder").
		WithGroup("slot").
		Info("skipped", "index", 3, "error", errors.New("zero timestamp"))

	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]any{
		"component":  "decoder",
		"slot.index": int64(3),
		"slot.error": "zero timestamp",
	}, entries[0].Attrs)
}

func TestHistory_RespectsLevel(t *testing.T) {
	h := NewHistory(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}), HistoryPolicy{Capacity: 4})
	logger := slog.New(h)

	logger.Debug("hidden")
	logger.Info("shown")

	entries := h.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}

func TestHistory_Disabled(t *testing.T) {
	logger, history := newDiscardHistory(0)
	logger.Info("not kept")
	assert.Empty(t, history.Entries())
	assert.Equal(t, 0, history.Capacity())
}

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.AppEnv = "prod"

	logger, history := newLogger(&buf, cfg, "1.2.3", "cgm-agent")
	logger.InfoContext(context.Background(), "started")

	assert.Contains(t, buf.String(), `"msg":"started"`)
	assert.Contains(t, buf.String(), `"version":"1.2.3"`)
	require.Len(t, history.Entries(), 1)
	assert.Equal(t, "cgm-agent", history.Entries()[0].Attrs["app"])
}

func TestNew_DevUsesTint(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := newLogger(&buf, config.Default(), "dev", "cgm-agent")
	logger.Info("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"msg"`)
}
