package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdoutLogger(&buf, WARN)

	l.Info("SCAN", "hidden")
	l.Warn("SCAN", "shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "[SCAN")
}

func TestFileSinkWritesJSON(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	l, err := NewLogger(dir, DEBUG)
	require.NoError(t, err)
	l.out = &buf
	l.LogScan("recorded", 7, "total=1")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "scan-service-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var last LogEntry
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	for _, line := range lines {
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Category == "SCAN" {
			last = entry
		}
	}
	assert.Equal(t, "INFO", last.Level)
	assert.Equal(t, "[recorded] slot=7 - total=1", last.Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
}
