package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"info by default", false, false},
		{"debug enabled", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Debug: tt.debug, Writer: &buf})

			log.Debug("dialing")
			log.Info("connected", zap.String("target", "alice@example.com:22"))
			_ = log.Sync()

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "dialing"))
			assert.Contains(t, out, "INFO")
			assert.Contains(t, out, "sshcheck")
			assert.Contains(t, out, `"target": "alice@example.com:22"`)
		})
	}
}

func TestNewWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf})
	log.Warn("failed to close connection")

	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNewWithColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Color: true, Writer: &buf})
	log.Error("boom")

	assert.Contains(t, buf.String(), "\x1b[")
}
