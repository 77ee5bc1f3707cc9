package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "json").With("component", "table")
	l.Debug("commit", "revision", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "commit", record["msg"])
	require.Equal(t, "table", record["component"])
	require.EqualValues(t, 3, record["revision"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "text")
	l.Info("hidden")
	require.Zero(t, buf.Len())
	l.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestOr(t *testing.T) {
	var buf bytes.Buffer
	Or(New(&buf, "info", "text"), "heap").Info("load")
	require.Contains(t, buf.String(), "component=heap")
	require.NotNil(t, Or(nil, "heap"))
}
