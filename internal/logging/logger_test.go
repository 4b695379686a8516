package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitialize_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		env      string
		enabled  zapcore.Level
		disabled zapcore.Level
		silent   bool
	}{
		{name: "silent by default", silent: true},
		{name: "explicit warn", level: "warn", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{name: "env fallback", env: "debug", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{name: "explicit wins over env", level: "error", env: "debug", enabled: zapcore.ErrorLevel, disabled: zapcore.WarnLevel},
		{name: "unknown means info", level: "loud", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LogLevelEnvVar, tt.env)
			t.Cleanup(func() { logger = nil })

			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize(%q) error = %v", tt.level, err)
			}
			core := GetLogger().Core()
			if tt.silent {
				if core.Enabled(zapcore.ErrorLevel) {
					t.Error("silent logger has error level enabled")
				}
				return
			}
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %v disabled, want enabled", tt.enabled)
			}
			if core.Enabled(tt.disabled) {
				t.Errorf("level %v enabled, want disabled", tt.disabled)
			}
		})
	}
}

func TestGetLogger_Uninitialized(t *testing.T) {
	logger = nil
	t.Cleanup(func() { logger = nil })

	if GetLogger() == nil {
		t.Fatal("GetLogger() = nil, want a no-op logger")
	}
	// Helpers must not panic before Initialize.
	Component("test").Info("ignored")
	LogRawBytes("rx", []byte("hi"))
}
