package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{" INFO ", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: WarnLevel, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown", "unit", "a.c")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN: shown unit=a.c")

	buf.Reset()
	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "DEBUG: now visible")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, Output: &buf, JSONOutput: true})

	l.With("run", "r1").Error("unit failed", "file", "main.c", "attempt", 2)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "unit failed", entry["message"])
	assert.Equal(t, "r1", entry["run"])
	assert.Equal(t, "main.c", entry["file"])
	assert.Equal(t, "2", entry["attempt"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestWithSharesCore(t *testing.T) {
	var buf bytes.Buffer
	parent := New(LoggerConfig{Level: InfoLevel, Output: &buf})
	child := parent.With("pass", "dfg")

	parent.SetLevel(ErrorLevel)
	child.Info("dropped")
	assert.Empty(t, buf.String())

	child.Error("kept", "fn", "main")
	assert.Contains(t, buf.String(), "kept pass=dfg fn=main")

	buf.Reset()
	parent.Error("plain")
	assert.NotContains(t, buf.String(), "pass=dfg")
}

func TestOddArgs(t *testing.T) {
	var buf bytes.Buffer
	l := New(LoggerConfig{Level: InfoLevel, Output: &buf})
	l.Info("odd", "lonely")
	assert.True(t, strings.Contains(buf.String(), "odd arg=lonely"), buf.String())
}

func TestDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	d := Discard()
	SetDefault(d)
	assert.Same(t, d, Default())
}
