package logutil

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestSetupWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "info", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger.Info().Str("conversation_id", "c1").Msg("callback received")
	logger.Debug().Msg("suppressed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "callback received", entry["message"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.Contains(t, entry, "time")
}
