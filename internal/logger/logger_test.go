package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func resetLogger() {
	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	sugarLogger = nil
	baseLogger = nil
	atomicLevel = zap.AtomicLevel{}
	currentConfig = Config{}
	mu.Unlock()
	once = sync.Once{}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggerLazyInit(t *testing.T) {
	resetLogger()
	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
	if atomicLevel.Level() != zapcore.InfoLevel {
		t.Errorf("default level = %v, want info", atomicLevel.Level())
	}
}

func TestSetLogLevelAndWriter(t *testing.T) {
	resetLogger()
	_, cleanup := Init("info")
	defer cleanup()

	var buf bytes.Buffer
	old := ReplaceStderrWriter(&buf)
	defer ReplaceStderrWriter(old)

	Logger().Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message written at info level")
	}

	SetLogLevel("debug")
	Logger().Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug message missing after SetLogLevel; got %q", buf.String())
	}
}

func TestInitWithFile(t *testing.T) {
	resetLogger()
	path := filepath.Join(t.TempDir(), "logs", "export.log")

	var buf bytes.Buffer
	old := ReplaceStderrWriter(&buf)
	defer ReplaceStderrWriter(old)

	sugar, cleanup, err := InitWithConfig(Config{Level: "info", FilePath: path})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	sugar.Info("written to file")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing message; got %q", string(data))
	}
}
