package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logFileMu sync.Mutex
	logFile   io.WriteCloser
)

// InitLogger builds the process logger from cfg and installs it as the slog
// default. File logging failures fall back to stderr.
func InitLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var writers []io.Writer
	if cfg.LogFile != "" {
		w, err := setupLogFile(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  %v, logging to stderr\n", err)
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, w)
		}
	}
	if cfg.Debug && (len(writers) == 0 || writers[0] != os.Stderr) {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelDebug
	}
	return l
}

// setupLogFile opens the configured log file, replacing any file opened by a
// previous call.
func setupLogFile(cfg *Config) (io.Writer, error) {
	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	var w io.WriteCloser
	if cfg.LogRotate {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxLogSize,
			MaxAge:     cfg.MaxLogAge,
			MaxBackups: cfg.MaxLogBackups,
		}
	} else {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
	}

	logFileMu.Lock()
	prev := logFile
	logFile = w
	logFileMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return w, nil
}

// CloseLogFile closes the file opened by InitLogger, if any.
func CloseLogFile() {
	logFileMu.Lock()
	defer logFileMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
