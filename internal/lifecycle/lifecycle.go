// Package lifecycle tracks the process phase: Starting, Serving, Draining,
// Stopped. Transitions only move forward.
package lifecycle

import (
	"slices"
	"sync"
	"sync/atomic"
)

type State int32

const (
	Starting State = iota
	Serving
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Machine is safe for concurrent use. The zero value is in Starting.
type Machine struct {
	state  atomic.Int32
	reason atomic.Value // string

	mu       sync.Mutex
	watchers []func(from, to State)
}

func New() *Machine { return &Machine{} }

func (m *Machine) State() State { return State(m.state.Load()) }

// Reason is the reason given to the last Drain call, if any.
func (m *Machine) Reason() string {
	r, _ := m.reason.Load().(string)
	return r
}

// OnChange registers fn to run after every successful transition.
func (m *Machine) OnChange(fn func(from, to State)) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

// Advance moves to the given state if it is ahead of the current one.
// Skipping states is allowed (Starting -> Stopped on a failed start).
// It reports whether the transition happened.
func (m *Machine) Advance(to State) bool {
	if to < Starting || to > Stopped {
		return false
	}
	for {
		from := m.state.Load()
		if int32(to) <= from {
			return false
		}
		if m.state.CompareAndSwap(from, int32(to)) {
			m.notify(State(from), to)
			return true
		}
	}
}

func (m *Machine) notify(from, to State) {
	m.mu.Lock()
	ws := slices.Clone(m.watchers)
	m.mu.Unlock()
	for _, fn := range ws {
		fn(from, to)
	}
}

func (m *Machine) MarkServing() bool { return m.Advance(Serving) }

func (m *Machine) Drain(reason string) bool {
	if reason == "" {
		reason = "draining"
	}
	if m.State() >= Draining {
		return false
	}
	// visible to OnChange watchers
	m.reason.Store(reason)
	return m.Advance(Draining)
}

func (m *Machine) MarkStopped() bool { return m.Advance(Stopped) }

// Live implements health.Liveness. The process is live while Serving or
// Draining; in-flight work still completes during a drain.
func (m *Machine) Live() (string, bool) {
	s := m.State()
	return s.String(), s == Serving || s == Draining
}
