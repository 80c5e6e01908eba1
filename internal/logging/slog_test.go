package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, "warn")
	ctx := context.Background()
	l.Info(ctx, "hidden")
	l.Warn(ctx, "rolled back", "op", "task.update")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "rolled back")
	assert.Contains(t, out, "op=task.update")
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewText(&buf, "debug").With("component", "engine")
	l.Debug(context.Background(), "confirmed")
	assert.Contains(t, buf.String(), "component=engine")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
