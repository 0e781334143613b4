package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{name: "Debug", expectedLevel: zapcore.DebugLevel},
		{name: "Info", expectedLevel: zapcore.InfoLevel},
		{name: "Warn", expectedLevel: zapcore.WarnLevel},
		{name: "Error", expectedLevel: zapcore.ErrorLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			dut := &ZapLogger{zap.New(core)}

			const testMessage = "catalog event"

			switch tc.name {
			case "Debug":
				dut.Debug(testMessage)
				dut.DebugWithContext(context.Background(), testMessage)
			case "Info":
				dut.Info(testMessage)
				dut.InfoWithContext(context.Background(), testMessage)
			case "Warn":
				dut.Warn(testMessage)
				dut.WarnWithContext(context.Background(), testMessage)
			case "Error":
				dut.Error(testMessage)
				dut.ErrorWithContext(context.Background(), testMessage)
			}

			entries := logs.TakeAll()
			require.Len(t, entries, 2)
			for _, entry := range entries {
				require.Equal(t, tc.expectedLevel, entry.Level)
				require.Equal(t, testMessage, entry.Message)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("none_level_returns_noop", func(t *testing.T) {
		l, err := NewLogger("json", "none", "Unix")
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown_level_errors", func(t *testing.T) {
		_, err := NewLogger("json", "loud", "Unix")
		require.Error(t, err)
	})

	t.Run("unknown_format_errors", func(t *testing.T) {
		_, err := NewLogger("xml", "info", "Unix")
		require.Error(t, err)
	})

	t.Run("unknown_timestamp_format_errors", func(t *testing.T) {
		_, err := NewLogger("json", "info", "RFC1123")
		require.Error(t, err)
	})

	t.Run("text_format", func(t *testing.T) {
		l, err := NewLogger("text", "info", "ISO8601")
		require.NoError(t, err)
		require.NotNil(t, l)
	})
}
