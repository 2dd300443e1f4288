package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info", "json")
	require.NoError(t, err)

	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "pipeline").Msg("cycle started")

	line := buf.String()
	assert.Equal(t, "cycle started", gjson.Get(line, "message").String())
	assert.Equal(t, "pipeline", gjson.Get(line, "component").String())
	assert.Equal(t, "alpha-finder", gjson.Get(line, "service").String())
	assert.NotContains(t, line, "hidden")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
}
