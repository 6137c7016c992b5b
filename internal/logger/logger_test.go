package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "info",
		Environment: "production",
		ServiceName: "erp-approvals",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Info().Str("request_id", "r-1").Msg("Approval request created")
	log.Debug().Msg("suppressed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "erp-approvals", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "r-1", entry["request_id"])
	assert.Equal(t, "Approval request created", entry["message"])
}
