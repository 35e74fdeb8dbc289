package monitor

import (
	"sync"

	hook "github.com/robotn/gohook"
)

const hookBufferSize = 256

// HookSource reads global input events through gohook.
type HookSource struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewHookSource() *HookSource {
	return &HookSource{}
}

func (h *HookSource) Start() (<-chan Kind, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	raw := hook.Start()
	out := make(chan Kind, hookBufferSize)
	h.stop = make(chan struct{})
	h.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				kind := classify(ev.Kind)
				if kind == Other {
					continue
				}
				// Drop rather than stall the hook when the consumer lags;
				// one queued event is enough to stamp the clock.
				select {
				case out <- kind:
				default:
				}
			}
		}
	}(h.stop, h.done)

	return out, nil
}

func (h *HookSource) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop == nil {
		return
	}
	close(h.stop)
	hook.End()
	<-h.done
	h.stop = nil
}

func classify(k uint8) Kind {
	switch k {
	case hook.MouseMove, hook.MouseDrag:
		return PointerMove
	case hook.MouseDown, hook.MouseUp, hook.MouseHold:
		return PointerButton
	case hook.MouseWheel:
		return Scroll
	case hook.KeyDown, hook.KeyHold:
		return KeyPress
	default:
		return Other
	}
}
