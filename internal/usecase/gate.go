package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"

	"pushtotalk/internal/domain"
	"pushtotalk/internal/ports"
)

const (
	gateMuted int32 = iota
	gatePassthrough
)

// Gate decides whether captured audio reaches the virtual microphone.
// Opening on a press is immediate; closing after a release waits out a
// short debounce window, and a re-press inside that window cancels the
// pending close. Once disabled the gate stays muted for good.
type Gate struct {
	events ports.EventSink

	state atomic.Int32

	mu       sync.Mutex
	schedule func(func())
	gen      uint64
	terminal bool
}

func NewGate(releaseDebounce time.Duration, events ports.EventSink) *Gate {
	g := &Gate{events: events}
	if releaseDebounce > 0 {
		g.schedule = debounce.New(releaseDebounce)
	}
	return g
}

// State reports the current gate state. Cheap enough for the bridge to
// call on every frame.
func (g *Gate) State() domain.GateState {
	if g.state.Load() == gatePassthrough {
		return domain.GateStatePassthrough
	}
	return domain.GateStateMuted
}

// Apply feeds one normalized key transition into the gate.
func (g *Gate) Apply(t domain.KeyTransition) {
	switch t.Edge {
	case domain.KeyEdgePressed:
		g.open()
	case domain.KeyEdgeReleased:
		g.release()
	case domain.KeyEdgeDisabled:
		g.disable(domain.GateReasonBackendDisabled)
	}
}

func (g *Gate) open() {
	g.mu.Lock()
	if g.terminal {
		g.mu.Unlock()
		return
	}
	g.gen++
	if g.schedule != nil {
		// Replaces any pending close with a no-op.
		g.schedule(func() {})
	}
	changed := g.state.Swap(gatePassthrough) != gatePassthrough
	g.mu.Unlock()

	if changed {
		g.events.GateChanged(domain.GateStatePassthrough, domain.GateReasonKeyPressed)
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	if g.terminal || g.state.Load() != gatePassthrough {
		g.mu.Unlock()
		return
	}
	gen := g.gen
	if g.schedule == nil {
		g.mu.Unlock()
		g.settle(gen)
		return
	}
	g.schedule(func() { g.settle(gen) })
	g.mu.Unlock()
}

// settle closes the gate for the release that scheduled it, unless a
// newer press or a disable got there first.
func (g *Gate) settle(gen uint64) {
	g.mu.Lock()
	if g.terminal || g.gen != gen || g.state.Load() != gatePassthrough {
		g.mu.Unlock()
		return
	}
	g.state.Store(gateMuted)
	g.mu.Unlock()

	g.events.GateChanged(domain.GateStateMuted, domain.GateReasonReleaseSettled)
}

func (g *Gate) disable(reason domain.GateReason) {
	g.mu.Lock()
	if g.terminal {
		g.mu.Unlock()
		return
	}
	g.terminal = true
	g.gen++
	changed := g.state.Swap(gateMuted) != gateMuted
	g.mu.Unlock()

	if changed {
		g.events.GateChanged(domain.GateStateMuted, reason)
	}
}
