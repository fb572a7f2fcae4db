// internal/common/logger/logger_test.go
package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestBuild_JSONAndConsole(t *testing.T) {
	l, err := Build(Options{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = Build(Options{Level: "error", Format: "console"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	scoped := log.WithFields(map[string]interface{}{"applicationId": "app-1"})
	scoped.Info("status changed", map[string]interface{}{"status": "under_review"})
	scoped.WithError(errors.New("boom")).Error("failed", nil)
	log.Warn("warned", map[string]interface{}{"cause": errors.New("transient")})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "status changed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "app-1", ctx["applicationId"])
	assert.Equal(t, "under_review", ctx["status"])

	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "transient", entries[2].ContextMap()["cause"])
}

func TestNoOpLogger(t *testing.T) {
	log := NewNoOpLogger()
	assert.NotPanics(t, func() {
		log.With(map[string]interface{}{"k": 1}).Debug("nothing", nil)
	})
}

func TestNew(t *testing.T) {
	l := New("warn", "json")
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
}
