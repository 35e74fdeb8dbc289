package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joncrangle/idle-clicker/internal/config"
	"github.com/joncrangle/idle-clicker/internal/console"
	"github.com/joncrangle/idle-clicker/internal/idle"
	"github.com/joncrangle/idle-clicker/internal/indicator"
	"github.com/joncrangle/idle-clicker/internal/inject"
	"github.com/joncrangle/idle-clicker/internal/liveness"
	"github.com/joncrangle/idle-clicker/internal/monitor"
	"github.com/joncrangle/idle-clicker/internal/websocket"
)

// Timings are the pauses of the injection sequence and the loop cadence.
type Timings struct {
	Settle     time.Duration
	AfterClick time.Duration
	AfterKey   time.Duration
	Poll       time.Duration
}

var DefaultTimings = Timings{
	Settle:     300 * time.Millisecond,
	AfterClick: 500 * time.Millisecond,
	AfterKey:   200 * time.Millisecond,
	Poll:       time.Second,
}

const monitorStopTimeout = time.Second

// ErrMonitorStopped means input activity can no longer be observed, so idle
// time would be meaningless.
var ErrMonitorStopped = errors.New("input monitor stopped")

type Service struct {
	logger    *slog.Logger
	config    *config.Config
	clock     *idle.Clock
	injector  inject.Injector
	checker   liveness.Checker
	indicator indicator.Controller
	source    monitor.Source
	renderer  *console.Renderer
	hub       *websocket.Hub
	target    image.Point
	timings   Timings
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	statePath string

	consoleOut io.Writer
	version    string

	mu    sync.Mutex
	state State
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithInjector(i inject.Injector) Option { return func(s *Service) { s.injector = i } }

func WithChecker(c liveness.Checker) Option { return func(s *Service) { s.checker = c } }

func WithIndicator(c indicator.Controller) Option { return func(s *Service) { s.indicator = c } }

func WithSource(src monitor.Source) Option { return func(s *Service) { s.source = src } }

func WithHub(h *websocket.Hub) Option { return func(s *Service) { s.hub = h } }

func WithTimings(t Timings) Option { return func(s *Service) { s.timings = t } }

// WithClock replaces the wall clock used for idle measurement and the state
// snapshot.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSleep replaces the pause used between steps and cycles.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// WithStateFile enables the YAML snapshot read by the status command.
func WithStateFile(path string) Option { return func(s *Service) { s.statePath = path } }

// WithConsole draws the banner and status line to out.
func WithConsole(out io.Writer, version string) Option {
	return func(s *Service) {
		s.consoleOut = out
		s.version = version
	}
}

func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		config:  cfg,
		timings: DefaultTimings,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = config.InitLogger(cfg)
	}
	s.clock = idle.NewClockWithNow(s.now)
	if s.injector == nil {
		s.injector = inject.NewRobot(s.logger)
	}
	if s.checker == nil {
		c, err := liveness.New(cfg.Liveness, s.logger)
		if err != nil {
			return nil, err
		}
		s.checker = c
	}
	if s.indicator == nil {
		c, err := newIndicator(cfg, s.logger)
		if err != nil {
			return nil, err
		}
		s.indicator = c
	}
	if s.source == nil {
		s.source = monitor.NewHookSource()
	}
	if s.hub == nil && cfg.WebSocket {
		s.hub = websocket.NewHub(os.Getpid(), s.logger)
	}

	screen := s.injector.ScreenSize()
	s.target = inject.TargetPoint(screen, cfg.OffsetX, cfg.OffsetY)

	if s.consoleOut != nil && !cfg.Debug {
		s.renderer = console.New(s.consoleOut, console.Banner{
			Version:     s.version,
			IdleTimeout: cfg.GetIdleTimeout(),
			Target:      cfg.Target,
			Screen:      screen,
			Point:       s.target,
			LogFile:     cfg.LogFile,
		})
	} else {
		s.renderer = console.Discard()
	}

	s.state = State{
		PID:                os.Getpid(),
		Status:             "stopped",
		Target:             cfg.Target,
		IdleTimeoutSeconds: cfg.IdleTimeout,
	}

	s.logger.Info("Service configured",
		slog.Int("idle_timeout", cfg.IdleTimeout),
		slog.String("target", cfg.Target),
		slog.Int("screen_width", screen.X),
		slog.Int("screen_height", screen.Y),
		slog.Int("x", s.target.X),
		slog.Int("y", s.target.Y),
		slog.String("indicator", fmt.Sprint(s.indicator)))
	return s, nil
}

func newIndicator(cfg *config.Config, logger *slog.Logger) (indicator.Controller, error) {
	if cfg.NoIndicator {
		return indicator.Nop{}, nil
	}
	if fields := strings.Fields(cfg.IndicatorCmd); len(fields) > 0 {
		return indicator.NewManager(fields[0], fields[1:], logger), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return indicator.NewManager(exe, []string{"indicator"}, logger), nil
}

// Target returns the click point.
func (s *Service) Target() image.Point {
	return s.target
}

// Clock exposes the shared idle clock.
func (s *Service) Clock() *idle.Clock {
	return s.clock
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MainLoop runs trigger cycles until ctx is done. It returns nil on
// cancellation and the first unrecoverable cycle error otherwise.
func (s *Service) MainLoop(ctx context.Context) error {
	s.renderer.Banner()
	s.indicator.Start(s.target)

	s.logger.Info("Main loop started",
		slog.Duration("interval", s.timings.Poll),
		slog.Duration("idle_timeout", s.config.GetIdleTimeout()))

	for {
		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Main loop stopping during injection")
				return nil
			}
			s.logger.Error("Main loop failed", slog.String("error", err.Error()))
			return err
		}
		if err := s.sleep(ctx, s.timings.Poll); err != nil {
			s.logger.Info("Main loop stopping")
			return nil
		}
	}
}

func (s *Service) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Cycle panic recovered", slog.Any("error", r))
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	timeout := s.config.GetIdleTimeout()
	idleFor := s.clock.Idle()
	running := s.checker.IsRunning(ctx, s.config.Target)
	s.setTargetRunning(running)

	if idleFor < timeout || !running {
		s.renderer.Waiting(idleFor, timeout, running)
		s.logger.Debug("Waiting",
			slog.Duration("idle", idleFor),
			slog.Bool("target_running", running))
		s.publish(websocket.Event{
			Status:        "running",
			Type:          websocket.TypeCycle,
			Message:       "waiting",
			IdleSeconds:   idleFor.Seconds(),
			TargetRunning: running,
		})
		return nil
	}

	s.logger.Info("Idle timeout reached, injecting",
		slog.Duration("idle", idleFor),
		slog.Int("x", s.target.X),
		slog.Int("y", s.target.Y))

	switch err := s.inject(ctx); {
	case err == nil:
		s.injected(idleFor)
		return nil
	case errors.Is(err, inject.ErrFailSafe):
		s.failSafe(err)
		return nil
	default:
		return fmt.Errorf("injection failed: %w", err)
	}
}

// inject moves to the target, clicks, confirms with the configured key and
// returns the pointer to where the user left it.
func (s *Service) inject(ctx context.Context) error {
	s.indicator.Stop()

	prev := s.injector.Location()

	if err := s.injector.MoveTo(s.target); err != nil {
		return fmt.Errorf("move to target: %w", err)
	}
	if err := s.sleep(ctx, s.timings.Settle); err != nil {
		return err
	}

	if err := s.injector.Click(); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	if err := s.sleep(ctx, s.timings.AfterClick); err != nil {
		return err
	}

	if err := s.injector.KeyTap(s.config.Key); err != nil {
		return fmt.Errorf("key tap %q: %w", s.config.Key, err)
	}
	if err := s.sleep(ctx, s.timings.AfterKey); err != nil {
		return err
	}

	// The hook sees the move-back as ordinary pointer motion.
	if err := s.clock.Suppress(func() error { return s.injector.MoveTo(prev) }); err != nil {
		return fmt.Errorf("move back: %w", err)
	}

	s.indicator.Start(s.target)
	s.clock.Reset()
	return nil
}

func (s *Service) injected(idleFor time.Duration) {
	s.mu.Lock()
	s.state.Injections++
	s.state.LastInjection = s.now()
	count := s.state.Injections
	s.mu.Unlock()

	s.logger.Info("Injection complete",
		slog.Int("injections", count),
		slog.Duration("idle", idleFor))
	s.renderer.Clicked(idleFor)
	s.publish(websocket.Event{
		Status:        "running",
		Type:          websocket.TypeClicked,
		Message:       fmt.Sprintf("Clicked at (%d, %d)", s.target.X, s.target.Y),
		IdleSeconds:   idleFor.Seconds(),
		TargetRunning: true,
	})
	s.saveState()
}

func (s *Service) failSafe(err error) {
	s.logger.Warn("Injection aborted", slog.String("error", err.Error()))
	s.renderer.FailSafe()
	s.indicator.Start(s.target)
	s.clock.Reset()
	s.publish(websocket.Event{
		Status:  "running",
		Type:    websocket.TypeFailSafe,
		Message: err.Error(),
	})
}

func (s *Service) setTargetRunning(running bool) {
	s.mu.Lock()
	changed := s.state.TargetRunning != running
	s.state.TargetRunning = running
	s.mu.Unlock()

	if changed {
		s.logger.Info("Target process state changed",
			slog.String("target", s.config.Target),
			slog.Bool("target_running", running))
		s.saveState()
	}
}

func (s *Service) setStatus(status string) {
	s.mu.Lock()
	s.state.Status = status
	s.mu.Unlock()

	s.publish(websocket.Event{
		Status:  status,
		Type:    websocket.TypeStatus,
		Message: fmt.Sprintf("State changed to %s", status),
	})
	s.saveState()
	s.logger.Info("Service state changed",
		slog.String("state", status),
		slog.Int("pid", os.Getpid()))
}

func (s *Service) publish(e websocket.Event) {
	if s.hub == nil {
		return
	}
	s.mu.Lock()
	e.Injections = s.state.Injections
	s.mu.Unlock()
	s.hub.Publish(e)
}

func (s *Service) saveState() {
	if s.statePath == "" {
		return
	}
	if err := WriteState(s.statePath, s.Snapshot()); err != nil {
		s.logger.Warn("Failed to write state file",
			slog.String("path", s.statePath),
			slog.String("error", err.Error()))
	}
}

// Run blocks until SIGINT or SIGTERM, then shuts down.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.RunContext(ctx)
	config.CloseLogFile()
	return err
}

// RunContext starts the input monitor and the optional status server, runs
// the trigger loop and always cleans up the indicator before returning. The
// loop never runs without a live monitor: if the monitor cannot start or stops
// early, RunContext returns an error wrapping ErrMonitorStopped.
func (s *Service) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := monitor.New(s.source, s.clock, s.logger)
	if err := mon.Start(); err != nil {
		s.logger.Error("Input monitor unavailable", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrMonitorStopped, err)
	}

	var srv *websocket.Server
	if s.hub != nil {
		var err error
		if srv, err = websocket.Listen(s.config.Port, s.hub); err != nil {
			s.source.Stop()
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}

	s.mu.Lock()
	s.state.StartedAt = s.now()
	s.mu.Unlock()
	s.setStatus("running")

	monitorDone := make(chan struct{})
	monitorErr := make(chan error, 1)
	go func() {
		defer close(monitorDone)
		err := mon.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = monitor.ErrSourceClosed
		}
		s.logger.Error("Input monitor stopped, shutting down", slog.String("error", err.Error()))
		monitorErr <- fmt.Errorf("%w: %w", ErrMonitorStopped, err)
		cancel()
	}()

	err := s.MainLoop(ctx)

	s.logger.Info("Shutting down service")
	cancel()
	s.indicator.Stop()

	select {
	case <-monitorDone:
	case <-time.After(monitorStopTimeout):
		s.logger.Warn("Input monitor did not stop in time")
	}
	select {
	case merr := <-monitorErr:
		err = errors.Join(merr, err)
	default:
	}

	s.setStatus("stopped")
	if srv != nil {
		if cerr := srv.Close(); cerr != nil {
			s.logger.Debug("WebSocket server close", slog.String("error", cerr.Error()))
		}
	}

	if err != nil {
		s.renderer.Stopped(fmt.Sprintf("Stopped: %v", err))
	} else {
		s.renderer.Stopped("Stopped by user")
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
