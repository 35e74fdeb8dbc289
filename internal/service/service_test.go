package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joncrangle/idle-clicker/internal/config"
	"github.com/joncrangle/idle-clicker/internal/idle"
	"github.com/joncrangle/idle-clicker/internal/indicator"
	"github.com/joncrangle/idle-clicker/internal/inject"
	"github.com/joncrangle/idle-clicker/internal/monitor"
	"github.com/joncrangle/idle-clicker/internal/websocket"
)

type fakeTime struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{t: time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type fakeInjector struct {
	mu     sync.Mutex
	pos    image.Point
	screen image.Point
	calls  []string
	failOn string
	err    error

	clock      *idle.Clock
	suppressed []bool
}

func (f *fakeInjector) ScreenSize() image.Point { return f.screen }

func (f *fakeInjector) Location() image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeInjector) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.HasPrefix(call, f.failOn) {
		return f.err
	}
	return nil
}

func (f *fakeInjector) MoveTo(p image.Point) error {
	if err := f.record(fmt.Sprintf("move %d,%d", p.X, p.Y)); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = p
	if f.clock != nil {
		f.suppressed = append(f.suppressed, f.clock.Suppressed())
	}
	return nil
}

func (f *fakeInjector) Click() error { return f.record("click") }

func (f *fakeInjector) KeyTap(key string) error { return f.record("key " + key) }

func (f *fakeInjector) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeChecker struct {
	running atomic.Bool
	names   []string
	panics  bool
}

func (f *fakeChecker) IsRunning(_ context.Context, name string) bool {
	if f.panics {
		panic("process table exploded")
	}
	f.names = append(f.names, name)
	return f.running.Load()
}

type fakeIndicator struct {
	mu     sync.Mutex
	starts []image.Point
	stops  int
}

func (f *fakeIndicator) Start(p image.Point) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, p)
	return true
}

func (f *fakeIndicator) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

type idleSource struct {
	ch      chan monitor.Kind
	stopped atomic.Bool
}

func newIdleSource() *idleSource {
	return &idleSource{ch: make(chan monitor.Kind, 4)}
}

func (s *idleSource) Start() (<-chan monitor.Kind, error) { return s.ch, nil }

func (s *idleSource) Stop() { s.stopped.Store(true) }

type failingSource struct {
	err error
}

func (f failingSource) Start() (<-chan monitor.Kind, error) { return nil, f.err }

func (failingSource) Stop() {}

type closedSource struct{}

func (closedSource) Start() (<-chan monitor.Kind, error) {
	ch := make(chan monitor.Kind)
	close(ch)
	return ch, nil
}

func (closedSource) Stop() {}

type harness struct {
	svc       *Service
	time      *fakeTime
	injector  *fakeInjector
	checker   *fakeChecker
	indicator *fakeIndicator
	source    *idleSource
}

func testConfig(timeout int) *config.Config {
	return &config.Config{
		IdleTimeout: timeout,
		Target:      config.DefaultTarget,
		OffsetX:     config.DefaultOffsetX,
		OffsetY:     config.DefaultOffsetY,
		Key:         config.DefaultKey,
		LogFormat:   "text",
	}
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		time:      newFakeTime(),
		injector:  &fakeInjector{pos: image.Pt(100, 200), screen: image.Pt(1920, 1080)},
		checker:   &fakeChecker{},
		indicator: &fakeIndicator{},
		source:    newIdleSource(),
	}
	h.checker.running.Store(true)

	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithInjector(h.injector),
		WithChecker(h.checker),
		WithIndicator(h.indicator),
		WithSource(h.source),
		WithClock(h.time.Now),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.time.Advance(d)
			return ctx.Err()
		}),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	require.NoError(t, err)
	h.svc = svc
	h.injector.clock = svc.Clock()
	return h
}

func TestNewServiceComputesTarget(t *testing.T) {
	h := newHarness(t, testConfig(20))

	assert.Equal(t, image.Pt(1520, 980), h.svc.Target())
	assert.Equal(t, "stopped", h.svc.Snapshot().Status)
	assert.Equal(t, 20, h.svc.Snapshot().IdleTimeoutSeconds)
	assert.Equal(t, h.time.Now(), h.svc.Clock().LastActivity())
}

func TestCycleBelowTimeoutDoesNothing(t *testing.T) {
	h := newHarness(t, testConfig(20))
	h.time.Advance(19900 * time.Millisecond)

	require.NoError(t, h.svc.cycle(context.Background()))

	assert.Empty(t, h.injector.Calls())
	assert.Equal(t, []string{"claude"}, h.checker.names)
	assert.Equal(t, 0, h.svc.Snapshot().Injections)
}

func TestCycleInjectsOnceAfterTimeout(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.time.Advance(1200 * time.Millisecond)

	require.NoError(t, h.svc.cycle(context.Background()))

	assert.Equal(t, []string{
		"move 1520,980",
		"click",
		"key enter",
		"move 100,200",
	}, h.injector.Calls())
	assert.Equal(t, image.Pt(100, 200), h.injector.Location())
	assert.Equal(t, []bool{false, true}, h.injector.suppressed)
	assert.False(t, h.svc.Clock().Suppressed())

	// Reset happens after the three pauses of the sequence.
	assert.Equal(t, h.time.Now(), h.svc.Clock().LastActivity())
	assert.Zero(t, h.svc.Clock().Idle())

	snap := h.svc.Snapshot()
	assert.Equal(t, 1, snap.Injections)
	assert.Equal(t, h.time.Now(), snap.LastInjection)

	assert.Equal(t, 1, h.indicator.stops)
	assert.Equal(t, []image.Point{image.Pt(1520, 980)}, h.indicator.starts)

	// The clock was reset, so the next cycle only waits.
	require.NoError(t, h.svc.cycle(context.Background()))
	assert.Len(t, h.injector.Calls(), 4)
}

func TestCycleTargetNotRunning(t *testing.T) {
	h := newHarness(t, testConfig(20))
	h.checker.running.Store(false)
	h.time.Advance(30 * time.Second)

	require.NoError(t, h.svc.cycle(context.Background()))

	assert.Empty(t, h.injector.Calls())
	assert.False(t, h.svc.Snapshot().TargetRunning)
	assert.Equal(t, 30*time.Second, h.svc.Clock().Idle())
}

func TestCycleFailSafe(t *testing.T) {
	tests := []struct {
		name   string
		failOn string
		calls  []string
	}{
		{"before move", "move 1520", []string{"move 1520,980"}},
		{"before click", "click", []string{"move 1520,980", "click"}},
		{"before key", "key", []string{"move 1520,980", "click", "key enter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(1))
			h.injector.failOn = tt.failOn
			h.injector.err = inject.ErrFailSafe
			h.time.Advance(2 * time.Second)

			require.NoError(t, h.svc.cycle(context.Background()))

			assert.Equal(t, tt.calls, h.injector.Calls())
			assert.Equal(t, 0, h.svc.Snapshot().Injections)
			assert.Equal(t, []image.Point{image.Pt(1520, 980)}, h.indicator.starts)
			assert.Zero(t, h.svc.Clock().Idle())

			// Next cycle after another idle period runs normally.
			h.injector.failOn = ""
			h.time.Advance(2 * time.Second)
			require.NoError(t, h.svc.cycle(context.Background()))
			assert.Equal(t, 1, h.svc.Snapshot().Injections)
		})
	}
}

func TestCycleFailSafeStopsBeforeKeystroke(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.injector.failOn = "click"
	h.injector.err = fmt.Errorf("wrapped: %w", inject.ErrFailSafe)
	h.time.Advance(time.Second)

	require.NoError(t, h.svc.cycle(context.Background()))

	for _, c := range h.injector.Calls() {
		assert.NotContains(t, c, "key")
	}
}

func TestCycleUnknownErrorIsFatal(t *testing.T) {
	h := newHarness(t, testConfig(1))
	boom := errors.New("display gone")
	h.injector.failOn = "click"
	h.injector.err = boom
	h.time.Advance(time.Second)

	err := h.svc.cycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCycleRecoversPanic(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.checker.panics = true

	err := h.svc.cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle panic")
}

func TestSuppressionClearedWhenMoveBackFails(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.injector.failOn = "move 100,200"
	h.injector.err = errors.New("move failed")
	h.time.Advance(time.Second)

	require.Error(t, h.svc.cycle(context.Background()))
	assert.False(t, h.svc.Clock().Suppressed())
}

func TestActivityDuringMoveBackIgnored(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.time.Advance(5 * time.Second)
	before := h.svc.Clock().LastActivity()

	err := h.svc.Clock().Suppress(func() error {
		h.time.Advance(time.Second)
		h.svc.Clock().ActivityObserved()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, before, h.svc.Clock().LastActivity())
}

func TestMainLoopOneInjectionPerIdleInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	var h *harness
	h = newHarness(t, testConfig(5), WithSleep(func(ctx context.Context, d time.Duration) error {
		h.time.Advance(d)
		if d == DefaultTimings.Poll {
			polls++
			if polls >= 8 {
				cancel()
			}
		}
		return ctx.Err()
	}))

	require.NoError(t, h.svc.MainLoop(ctx))

	assert.Equal(t, 1, h.svc.Snapshot().Injections)
	assert.Len(t, h.injector.Calls(), 4)
	assert.Equal(t, 1, h.indicator.stops)
	assert.Len(t, h.indicator.starts, 2)
}

func TestMainLoopReturnsFatalError(t *testing.T) {
	h := newHarness(t, testConfig(1))
	boom := errors.New("input backend lost")
	h.injector.failOn = "move 1520"
	h.injector.err = boom
	h.time.Advance(time.Second)

	err := h.svc.MainLoop(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestMainLoopCancelledDuringInjection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var h *harness
	h = newHarness(t, testConfig(1), WithSleep(func(ctx context.Context, d time.Duration) error {
		h.time.Advance(d)
		if d == DefaultTimings.AfterClick {
			cancel()
		}
		return ctx.Err()
	}))
	h.time.Advance(time.Second)

	require.NoError(t, h.svc.MainLoop(ctx))
	assert.Equal(t, []string{"move 1520,980", "click"}, h.injector.Calls())
	assert.Equal(t, 0, h.svc.Snapshot().Injections)
}

func TestRunContextLifecycle(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.yaml")
	hub := websocket.NewHub(4242, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cfg := testConfig(1)
	cfg.WebSocket = true
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	polls := 0
	var h *harness
	h = newHarness(t, cfg,
		WithHub(hub),
		WithStateFile(statePath),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.time.Advance(d)
			if d == DefaultTimings.Poll {
				polls++
				if polls == 1 {
					st, err := ReadState(statePath)
					require.NoError(t, err)
					assert.Equal(t, "running", st.Status)
				}
				if polls >= 3 {
					cancel()
				}
			}
			return ctx.Err()
		}))

	require.NoError(t, h.svc.RunContext(ctx))

	assert.True(t, h.source.stopped.Load())
	assert.GreaterOrEqual(t, h.indicator.stops, 2)

	st, err := ReadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.Status)
	assert.Equal(t, 2, st.Injections)
	assert.True(t, st.TargetRunning)
	assert.Equal(t, 1, st.IdleTimeoutSeconds)

	last := hub.Last()
	assert.Equal(t, "stopped", last.Status)
	assert.Equal(t, 2, last.Injections)
}

func TestRunContextMonitorStampsClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := newFakeTime().Now()
	var h *harness
	h = newHarness(t, testConfig(3), WithSleep(func(ctx context.Context, d time.Duration) error {
		h.time.Advance(d)
		h.source.ch <- monitor.KeyPress
		// Wait until the monitor goroutine has stamped the advanced time.
		deadline := time.Now().Add(time.Second)
		for h.svc.Clock().Idle() != 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if h.time.Now().Sub(start) >= 10*time.Second {
			cancel()
		}
		return ctx.Err()
	}))

	require.NoError(t, h.svc.RunContext(ctx))
	assert.Empty(t, h.injector.Calls())
}

func TestRunContextMonitorStartFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noDisplay := errors.New("no display")
	polls := 0
	var h *harness
	h = newHarness(t, testConfig(2),
		WithSource(failingSource{err: noDisplay}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.time.Advance(d)
			if d == DefaultTimings.Poll {
				polls++
				if polls >= 20 {
					cancel()
				}
			}
			return ctx.Err()
		}))
	h.time.Advance(10 * time.Second)

	err := h.svc.RunContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMonitorStopped)
	assert.ErrorIs(t, err, noDisplay)
	assert.Empty(t, h.injector.Calls())
	assert.Zero(t, h.svc.Snapshot().Injections)
	assert.Empty(t, h.indicator.starts)
}

func TestRunContextMonitorClosedStopsLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var h *harness
	h = newHarness(t, testConfig(20),
		WithSource(closedSource{}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
				h.time.Advance(d)
				return nil
			}
		}))

	err := h.svc.RunContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMonitorStopped)
	assert.ErrorIs(t, err, monitor.ErrSourceClosed)
	assert.NoError(t, ctx.Err(), "loop should stop on monitor failure, not on the test deadline")
	assert.Equal(t, "stopped", h.svc.Snapshot().Status)
	assert.GreaterOrEqual(t, h.indicator.stops, 1)
}

func TestNewIndicator(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := newIndicator(&config.Config{NoIndicator: true}, logger)
	require.NoError(t, err)
	assert.IsType(t, indicator.Nop{}, c)

	c, err = newIndicator(&config.Config{IndicatorCmd: "marker --size 40"}, logger)
	require.NoError(t, err)
	m, ok := c.(*indicator.Manager)
	require.True(t, ok)
	assert.Equal(t, "marker [--size 40]", m.String())

	c, err = newIndicator(&config.Config{}, logger)
	require.NoError(t, err)
	m, ok = c.(*indicator.Manager)
	require.True(t, ok)
	assert.Contains(t, m.String(), "[indicator]")
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
