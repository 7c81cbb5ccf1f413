package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json format emits structured output", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, int(zerolog.InfoLevel), "json", false)
		log.Info().Str("program_id", "abc").Msg("hello")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["message"])
		assert.Equal(t, "abc", line["program_id"])
		assert.Equal(t, "pvrfd", line["service"])
		assert.Contains(t, line, "time")
	})

	t.Run("level filters lower severities", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, int(zerolog.WarnLevel), "json", false)
		log.Info().Msg("dropped")
		assert.Empty(t, buf.String())

		log.Warn().Msg("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("console format is human readable", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, int(zerolog.DebugLevel), "console", false)
		log.Debug().Msg("console line")
		assert.Contains(t, buf.String(), "console line")
		assert.False(t, json.Valid(buf.Bytes()))
	})
}
