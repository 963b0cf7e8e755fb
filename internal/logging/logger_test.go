package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantTrace bool
		wantDebug bool
		wantInfo  bool
	}{
		{level: "trace", wantTrace: true, wantDebug: true, wantInfo: true},
		{level: "debug", wantTrace: false, wantDebug: true, wantInfo: true},
		{level: "info", wantTrace: false, wantDebug: false, wantInfo: true},
		{level: "warn", wantTrace: false, wantDebug: false, wantInfo: false},
		{level: "bogus", wantTrace: false, wantDebug: false, wantInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tt.level, Output: &buf})

			logger.Trace().Msg("trace message")
			logger.Debug().Msg("debug message")
			logger.Info().Msg("info message")

			output := buf.String()
			assert.Equal(t, tt.wantTrace, strings.Contains(output, "trace message"))
			assert.Equal(t, tt.wantDebug, strings.Contains(output, "debug message"))
			assert.Equal(t, tt.wantInfo, strings.Contains(output, "info message"))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, ComponentTraversal)

	logger.Info().Msg("walking")

	assert.Contains(t, buf.String(), `"component":"traversal"`)
	assert.Contains(t, buf.String(), "walking")
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Pretty: true, Output: &buf})

	logger.Info().Msg("pretty message")

	assert.Contains(t, buf.String(), "pretty message")
	assert.NotContains(t, buf.String(), `"message"`)
}
