// Package monitor watches global input events and reports user activity to an
// observer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies an input event.
type Kind int

const (
	// Other covers events that do not count as user activity (key release,
	// hook lifecycle notifications).
	Other Kind = iota
	PointerMove
	PointerButton
	Scroll
	KeyPress
)

func (k Kind) String() string {
	switch k {
	case PointerMove:
		return "pointer-move"
	case PointerButton:
		return "pointer-button"
	case Scroll:
		return "scroll"
	case KeyPress:
		return "key-press"
	default:
		return "other"
	}
}

// Observer is notified whenever user activity is seen.
type Observer interface {
	ActivityObserved()
}

// Source delivers classified input events until Stop is called.
type Source interface {
	Start() (<-chan Kind, error)
	Stop()
}

// ErrSourceClosed is returned by Run when the source stops delivering events
// while the monitor is still wanted.
var ErrSourceClosed = errors.New("input source closed")

// Monitor forwards activity from a Source to an Observer.
type Monitor struct {
	source   Source
	observer Observer
	logger   *slog.Logger
	events   <-chan Kind
}

func New(source Source, observer Observer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{source: source, observer: observer, logger: logger}
}

// Start subscribes to the source. Calling it before Run lets a caller fail
// fast on a missing input backend; Run starts the source itself otherwise.
func (m *Monitor) Start() error {
	if m.events != nil {
		return nil
	}
	events, err := m.source.Start()
	if err != nil {
		return fmt.Errorf("failed to start input source: %w", err)
	}
	m.events = events
	m.logger.Info("Input monitor started")
	return nil
}

// Run blocks until ctx is done, returning nil, or until the source fails.
// All four activity kinds share the same reset semantics.
func (m *Monitor) Run(ctx context.Context) (err error) {
	if err := m.Start(); err != nil {
		return err
	}
	defer m.source.Stop()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Input monitor panic recovered", slog.Any("error", r))
			err = fmt.Errorf("input monitor panic: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Input monitor stopping")
			return nil
		case kind, ok := <-m.events:
			if !ok {
				m.logger.Warn("Input source closed")
				return ErrSourceClosed
			}
			if kind == Other {
				continue
			}
			m.observer.ActivityObserved()
		}
	}
}
