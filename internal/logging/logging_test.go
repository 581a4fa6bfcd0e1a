package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("assignee unresolved", "pattern_code", "P1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "assignee unresolved", line["msg"])
	assert.Equal(t, "P1", line["pattern_code"])
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "al.log")
	logger, closeFn, err := New(nil, config.LoggingConfig{Format: "logfmt", File: path})
	require.NoError(t, err)
	logger.Info("sweep finished", "escalated", 2)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "escalated=2")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, _, err := New(nil, config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
	_, _, err = New(nil, config.LoggingConfig{Format: "xml"})
	assert.Error(t, err)
}
