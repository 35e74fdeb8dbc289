package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	DefaultIdleTimeout = 20
	FastIdleTimeout    = 1
	DefaultTarget      = "claude"
	DefaultOffsetX     = 400
	DefaultOffsetY     = 100
	DefaultKey         = "enter"
	DefaultPort        = 8765
	DefaultLogFile     = "idle-clicker.log"

	// The log file is always size-rotated unless rotation is turned off.
	DefaultLogRotate     = true
	DefaultMaxLogSize    = 1
	DefaultMaxLogBackups = 2
	DefaultMaxLogAge     = 30
)

var (
	logFormats = []string{"text", "json"}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	Debug       bool
	IdleTimeout int
	Target      string
	OffsetX     int
	OffsetY     int
	Key         string
	Liveness    string

	IndicatorCmd string
	NoIndicator  bool

	WebSocket bool
	Port      int

	LogFormat     string
	LogLevel      string
	LogFile       string
	LogRotate     bool
	MaxLogSize    int
	MaxLogAge     int
	MaxLogBackups int

	EnvFile string
}

var (
	PidFile   string
	StateFile string
)

func init() {
	dir := os.TempDir()
	if tmpDir := os.Getenv("TEMP"); tmpDir != "" {
		dir = tmpDir
	}
	PidFile = filepath.Join(dir, "idle-clicker.pid")
	StateFile = filepath.Join(dir, "idle-clicker.state.yaml")
}

// GetIdleTimeout returns the idle threshold as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

func (c *Config) Validate() error {
	var errs []error

	if c.IdleTimeout < 1 || c.IdleTimeout > 86400 {
		errs = append(errs, fmt.Errorf("idle timeout must be between 1 and 86400 seconds, got %d", c.IdleTimeout))
	}
	if strings.TrimSpace(c.Target) == "" {
		errs = append(errs, errors.New("target process name must not be empty"))
	}
	if strings.TrimSpace(c.Key) == "" {
		errs = append(errs, errors.New("confirmation key must not be empty"))
	}
	if c.OffsetX < 0 || c.OffsetY < 0 {
		errs = append(errs, fmt.Errorf("target offsets must not be negative, got (%d, %d)", c.OffsetX, c.OffsetY))
	}
	if c.WebSocket && (c.Port < 1024 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port must be between 1024 and 65535, got %d", c.Port))
	}
	if c.LogFormat != "" && !slices.Contains(logFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("log format must be one of %v, got %q", logFormats, c.LogFormat))
	}
	if c.LogLevel != "" && !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log level must be one of %v, got %q", logLevels, c.LogLevel))
	}
	if c.LogRotate && c.LogFile != "" {
		if c.MaxLogSize < 1 || c.MaxLogSize > 1000 {
			errs = append(errs, fmt.Errorf("max log size must be between 1 and 1000 MB, got %d", c.MaxLogSize))
		}
		if c.MaxLogAge < 1 || c.MaxLogAge > 365 {
			errs = append(errs, fmt.Errorf("max log age must be between 1 and 365 days, got %d", c.MaxLogAge))
		}
		if c.MaxLogBackups < 0 || c.MaxLogBackups > 100 {
			errs = append(errs, fmt.Errorf("max log backups must be between 0 and 100, got %d", c.MaxLogBackups))
		}
	}

	return errors.Join(errs...)
}

// CheckPortAvailable reports an error if the websocket port is already bound.
func CheckPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is not available: %w", port, err)
	}
	return ln.Close()
}
