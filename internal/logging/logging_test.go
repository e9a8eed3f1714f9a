package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)

	level, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	level, err = ParseLevel("disabled")
	require.NoError(t, err)
	assert.Equal(t, zerolog.Disabled, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("fatal")
	assert.Error(t, err)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Warn().Str("field", "head").Msg("using sentinel value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "using sentinel value")
	assert.Contains(t, out, "field=head")
	assert.Contains(t, out, "component=gitstamp")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "chatty")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error().Msg("discarded") })
}
