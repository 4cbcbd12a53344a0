// Package logger owns the process-wide zap logger used by every other package.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and an optional file that receives a copy
// of everything written to stderr.
type Config struct {
	Level    string
	FilePath string
}

// swappableWriter lets tests redirect console output without rebuilding cores.
type swappableWriter struct {
	mu     sync.RWMutex
	writer io.Writer
}

func (w *swappableWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.writer == nil {
		return len(p), nil
	}
	return w.writer.Write(p)
}

func (w *swappableWriter) Sync() error { return nil }

var (
	mu            sync.RWMutex
	once          sync.Once
	sugarLogger   *zap.SugaredLogger
	baseLogger    *zap.Logger
	atomicLevel   zap.AtomicLevel
	logFile       *os.File
	currentConfig Config
	stderrWriter  = &swappableWriter{writer: os.Stderr}
)

func applyConfig(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level := parseLevel(cfg.Level)
	if atomicLevel == (zap.AtomicLevel{}) {
		atomicLevel = zap.NewAtomicLevelAt(level)
	} else {
		atomicLevel.SetLevel(level)
	}

	encoderCfg := zap.NewDevelopmentConfig().EncoderConfig
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(stderrWriter), atomicLevel),
	}

	filePath := strings.TrimSpace(cfg.FilePath)
	if filePath != "" {
		fileCore, handle, err := buildFileCore(encoderCfg, filePath)
		if err != nil {
			return err
		}
		if logFile != nil && logFile != handle {
			_ = logFile.Close()
		}
		logFile = handle
		cores = append(cores, fileCore)
	} else if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	baseLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	sugarLogger = baseLogger.Sugar()
	zap.ReplaceGlobals(baseLogger)

	currentConfig = Config{Level: level.String(), FilePath: filePath}
	return nil
}

func buildFileCore(encoderCfg zapcore.EncoderConfig, path string) (zapcore.Core, *os.File, error) {
	cleaned := filepath.Clean(path)
	if dir := filepath.Dir(cleaned); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory %q: %w", dir, err)
		}
	}

	file, err := os.OpenFile(cleaned, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", cleaned, err)
	}

	fileEncoderCfg := encoderCfg
	fileEncoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderCfg), zapcore.AddSync(file), atomicLevel), file, nil
}

// InitWithConfig configures the global logger. Calling it again with a
// different config reconfigures the logger in place. The returned cleanup
// flushes the logger and closes the log file, if any.
func InitWithConfig(cfg Config) (*zap.SugaredLogger, func(), error) {
	var initErr error
	initializedHere := false
	requested := Config{Level: parseLevel(cfg.Level).String(), FilePath: strings.TrimSpace(cfg.FilePath)}

	once.Do(func() {
		initErr = applyConfig(cfg)
		initializedHere = true
	})
	if initErr != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", initErr)
	}

	if !initializedHere {
		mu.RLock()
		same := currentConfig == requested
		mu.RUnlock()
		if !same {
			if err := applyConfig(cfg); err != nil {
				return nil, nil, fmt.Errorf("logger reconfiguration failed: %w", err)
			}
		}
	}

	mu.RLock()
	sugar := sugarLogger
	current := logFile
	mu.RUnlock()

	cleanup := func() {
		mu.Lock()
		defer mu.Unlock()
		if baseLogger != nil {
			_ = baseLogger.Sync()
		}
		if current != nil {
			if err := current.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
			if logFile == current {
				logFile = nil
			}
		}
	}
	return sugar, cleanup, nil
}

// Init sets up the global logger at the given level.
func Init(level string) (*zap.SugaredLogger, func()) {
	sugar, cleanup, err := InitWithConfig(Config{Level: level})
	if err != nil {
		panic(err)
	}
	return sugar, cleanup
}

// Logger returns the global sugared logger, initializing it at info level
// on first use.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		if err := applyConfig(Config{Level: "info"}); err != nil {
			panic(fmt.Sprintf("logger initialization failed: %v", err))
		}
	})

	mu.RLock()
	defer mu.RUnlock()
	return sugarLogger
}

// With returns a child logger carrying the given key/value pairs.
func With(args ...interface{}) *zap.SugaredLogger {
	return Logger().With(args...)
}

// SetLogLevel changes the level without rebuilding the logger.
func SetLogLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	if atomicLevel == (zap.AtomicLevel{}) {
		return
	}
	lvl := parseLevel(level)
	atomicLevel.SetLevel(lvl)
	currentConfig.Level = lvl.String()
}

// ReplaceStderrWriter swaps the console writer and returns the previous one.
func ReplaceStderrWriter(w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	stderrWriter.mu.Lock()
	defer stderrWriter.mu.Unlock()
	old := stderrWriter.writer
	if old == nil {
		old = os.Stderr
	}
	stderrWriter.writer = w
	return old
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
