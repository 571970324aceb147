package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.Info().Str("run", "abc").Msg("analysis started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "analysis started", entry["message"])
	assert.Equal(t, "abc", entry["run"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	defer func() { log.Logger = prev }()

	log.Logger = NewLogger(&buf)
	logger := WithComponent("sampler")
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"sampler"`)
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewLogger(&a, &b)
	logger.Warn().Msg("twice")
	assert.Contains(t, a.String(), "twice")
	assert.Contains(t, b.String(), "twice")
}
