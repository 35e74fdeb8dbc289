// Package cmd implements the command-line interface for the idle-clicker application.
package cmd

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joncrangle/idle-clicker/internal/config"
	"github.com/joncrangle/idle-clicker/internal/indicator"
	"github.com/joncrangle/idle-clicker/internal/liveness"
	"github.com/joncrangle/idle-clicker/internal/service"
)

var cfg = &config.Config{}

var markerSize int

var rootCmd = &cobra.Command{
	Use:   "idle-clicker",
	Short: "Click through idle prompts while you are away",
	Long: `Idle-Clicker watches keyboard and mouse activity. When you have been idle
for the configured time and the target process is running, it clicks a point
near the bottom-right corner of the screen, presses enter, and puts the
pointer back where it was.

Move the pointer into any screen corner to abort a click in progress.`,
	Version:           "0.1.0",
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		svc, err := service.NewService(cfg, service.WithConsole(color.Output, rootCmd.Version))
		if err != nil {
			return fmt.Errorf("❌ %v", err)
		}
		return svc.Run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display version information for idle-clicker",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("idle-clicker version %s\n", rootCmd.Version)
		fmt.Println("Click through idle prompts while you are away")
		fmt.Println("https://github.com/joncrangle/idle-clicker")
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start Idle-Clicker",
	Long:  "Start Idle-Clicker in the background",
	RunE: func(_ *cobra.Command, _ []string) error {
		return start()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop Idle-Clicker process",
	Long:  "Stop the background Idle-Clicker process",
	RunE: func(_ *cobra.Command, _ []string) error {
		return stop()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of Idle-Clicker",
	Long:  "Display the current status of Idle-Clicker with its last recorded activity",
	RunE: func(_ *cobra.Command, _ []string) error {
		running, pid, info, err := service.GetEnhancedStatus()
		if err != nil {
			return fmt.Errorf("❌ %v", err)
		}

		if !running {
			fmt.Println("❌ Service not running")
			return nil
		}

		fmt.Printf("✅ Service running (PID %d)\n", pid)
		if info == nil {
			return nil
		}
		if info.Target != "" {
			state := "not found"
			if info.TargetRunning {
				state = "running"
			}
			fmt.Printf("   🎯 Target %q: %s\n", info.Target, state)
		}
		if info.IdleTimeoutSeconds > 0 {
			fmt.Printf("   ⏱️  Idle timeout: %ds\n", info.IdleTimeoutSeconds)
		}
		fmt.Printf("   🖱️  Clicks: %d\n", info.Injections)
		if !info.LastInjection.IsZero() {
			fmt.Printf("   🕒 Last click: %s ago\n", since(time.Since(info.LastInjection)))
		}
		if !info.StartedAt.IsZero() {
			fmt.Printf("   🚀 Up: %s\n", since(time.Since(info.StartedAt)))
		}
		return nil
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle Idle-Clicker",
	Long:  "Start Idle-Clicker if it's not running, or stop it if it's currently running",
	RunE: func(_ *cobra.Command, _ []string) error {
		running, _, _, err := service.GetEnhancedStatus()
		if err != nil {
			return fmt.Errorf("❌ %v", err)
		}
		if running {
			return stop()
		}
		return start()
	},
}

var runCmd = &cobra.Command{
	Use:    "run",
	Short:  "Internal command to run Idle-Clicker",
	Hidden: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		svc, err := service.NewService(cfg, service.WithStateFile(config.StateFile))
		if err != nil {
			return err
		}
		return svc.Run()
	},
}

var indicatorCmd = &cobra.Command{
	Use:    "indicator X Y",
	Short:  "Internal command to draw the click marker",
	Hidden: true,
	Args:   cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		p, err := parsePoint(args[0], args[1])
		if err != nil {
			return err
		}
		return indicator.NewMarker(p, markerSize).Run()
	},
}

func start() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.WebSocket {
		if err := config.CheckPortAvailable(cfg.Port); err != nil {
			return fmt.Errorf("❌ %v", err)
		}
	}

	if cfg.Debug {
		fmt.Println("🔧 Starting service in debug mode (foreground)")
	}

	pid, err := service.Start(cfg)
	if err != nil {
		return fmt.Errorf("❌ %v", err)
	}

	if !cfg.Debug {
		fmt.Printf("🚀 Service started in background (PID %d)\n", pid)
		if cfg.WebSocket {
			fmt.Printf("🌐 WebSocket server available at: ws://127.0.0.1:%d\n", cfg.Port)
		}
		fmt.Println("✅ Service started successfully")
	}
	return nil
}

func stop() error {
	pid, err := service.Stop()
	if err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			fmt.Printf("ℹ️  %v\n", err)
			return nil
		}
		return fmt.Errorf("❌ %v", err)
	}
	fmt.Printf("✅ Service stopped (PID %d)\n", pid)
	return nil
}

func parsePoint(xs, ys string) (image.Point, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid x coordinate %q: %w", xs, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return image.Point{}, fmt.Errorf("invalid y coordinate %q: %w", ys, err)
	}
	return image.Pt(x, y), nil
}

func since(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return d.Truncate(time.Minute).String()
	}
}

// loadEnv fills flags that were not given on the command line from the env
// file and IDLE_CLICKER_* variables.
func loadEnv(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return err
	}
	return config.ApplyEnv(cmd.Flags())
}

// addConfigFlags adds all configuration flags to a command
func addConfigFlags(cmd *cobra.Command, includeShortcuts bool) {
	if includeShortcuts {
		cmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Debug logging to stderr (disables the status line)")
		cmd.Flags().IntVarP(&cfg.IdleTimeout, "fast", "f", config.DefaultIdleTimeout, "Idle timeout in seconds (bare -f means 1)")
		cmd.Flags().BoolVarP(&cfg.WebSocket, "websocket", "w", false, "Enable WebSocket server")
		cmd.Flags().IntVarP(&cfg.Port, "port", "p", config.DefaultPort, "WebSocket server port")
	} else {
		cmd.Flags().BoolVar(&cfg.Debug, "debug", false, "Debug mode")
		cmd.Flags().IntVar(&cfg.IdleTimeout, "fast", config.DefaultIdleTimeout, "Idle timeout in seconds")
		cmd.Flags().BoolVar(&cfg.WebSocket, "websocket", false, "Enable WebSocket server")
		cmd.Flags().IntVar(&cfg.Port, "port", config.DefaultPort, "WebSocket server port")
	}
	cmd.Flags().Lookup("fast").NoOptDefVal = strconv.Itoa(config.FastIdleTimeout)

	// Common flags for all commands
	cmd.Flags().StringVar(&cfg.Target, "target", config.DefaultTarget, "Process name substring that must be running")
	cmd.Flags().IntVar(&cfg.OffsetX, "offset-x", config.DefaultOffsetX, "Click point distance from the right edge in pixels")
	cmd.Flags().IntVar(&cfg.OffsetY, "offset-y", config.DefaultOffsetY, "Click point distance from the bottom edge in pixels")
	cmd.Flags().StringVar(&cfg.Key, "key", config.DefaultKey, "Key pressed after the click")
	cmd.Flags().StringVar(&cfg.Liveness, "liveness", liveness.MethodAuto, fmt.Sprintf("Process check method %v", liveness.Methods))
	cmd.Flags().StringVar(&cfg.IndicatorCmd, "indicator-cmd", "", "Indicator command; X and Y are appended (default: built-in marker)")
	cmd.Flags().BoolVar(&cfg.NoIndicator, "no-indicator", false, "Do not show the click marker")
	cmd.Flags().StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text or json)")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", "debug", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&cfg.LogFile, "log-file", config.DefaultLogFile, "Log file path (empty for no file logging)")
	cmd.Flags().BoolVar(&cfg.LogRotate, "log-rotate", config.DefaultLogRotate, "Rotate the log file by size (--log-rotate=false to disable)")
	cmd.Flags().IntVar(&cfg.MaxLogSize, "max-log-size", config.DefaultMaxLogSize, "Maximum log file size in MB")
	cmd.Flags().IntVar(&cfg.MaxLogAge, "max-log-age", config.DefaultMaxLogAge, "Maximum log file age in days")
	cmd.Flags().IntVar(&cfg.MaxLogBackups, "max-log-backups", config.DefaultMaxLogBackups, "Maximum number of rotated log files")
	cmd.Flags().StringVar(&cfg.EnvFile, "env-file", ".env", "Environment file with IDLE_CLICKER_* settings")
}

func init() {
	addConfigFlags(rootCmd, true)
	addConfigFlags(startCmd, true)
	addConfigFlags(toggleCmd, true)
	addConfigFlags(runCmd, false)

	indicatorCmd.Flags().IntVar(&markerSize, "size", indicator.DefaultMarkerSize, "Marker diameter in pixels")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indicatorCmd)
}

func Execute() {
	rootCmd.SetArgs(normalizeFastArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
