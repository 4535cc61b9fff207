package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload), buf.String())
	return payload
}

func TestNewWithWriter_ErrorCarriesStackAndService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "saycal-test")
	log.Error().Stack().Err(errors.New("boom")).Msg("voice round-trip failed")

	p := decodeLine(t, &buf)
	assert.Equal(t, "saycal-test", p["service"])
	assert.Equal(t, "error", p["level"])
	assert.Equal(t, "boom", p["error"])
	assert.Contains(t, p, "stack")
	assert.Contains(t, p, "time")
}

func TestNewWithWriter_KeepsWrappedStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "saycal-test")
	log.Error().Stack().Err(pkgerrors.Wrap(errors.New("db down"), "consume voice call")).Msg("quota")

	p := decodeLine(t, &buf)
	assert.Equal(t, "consume voice call: db down", p["error"])
	frames, ok := p["stack"].([]any)
	require.True(t, ok, "stack must be a frame list")
	assert.NotEmpty(t, frames)
}

func TestNewWithWriter_InfoHasNoStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "saycal-test")
	log.Info().Str("stage", "quota").Msg("admitted")

	p := decodeLine(t, &buf)
	assert.Equal(t, "quota", p["stage"])
	assert.NotContains(t, p, "stack")
}
