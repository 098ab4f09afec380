package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.WithFields(map[string]interface{}{
		"wallet": "7ABz8qEFZTHPkovMDsmQkm64DZWN5wRtU7LEtD2ShkQ6",
		"trades": 4,
	}).Info("wallet refreshed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wallet refreshed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "7ABz8qEFZTHPkovMDsmQkm64DZWN5wRtU7LEtD2ShkQ6", entry["wallet"])
	assert.EqualValues(t, 4, entry["trades"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelWarn, FormatJSON)
	logger.SetOutput(&buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	parent := NewLogger(LevelInfo, FormatJSON)
	child := parent.WithField("cycleId", "abc")

	assert.NotContains(t, parent.Fields(), "cycleId")
	assert.Equal(t, "abc", child.Fields()["cycleId"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(LevelInfo, FormatJSON)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestFromContext(t *testing.T) {
	logger := NewLogger(LevelDebug, FormatText).WithField("wallet", "x")
	ctx := WithLogger(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
