package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json")
	logger.Info("starting")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "concord", record["service"])
	assert.Equal(t, "starting", record["msg"])
}

func TestLoggerTextFormatIsDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "pretty")
	logger.Info("starting")

	line := buf.String()
	assert.True(t, strings.Contains(line, "service=concord"), line)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(line), "{"))
}
