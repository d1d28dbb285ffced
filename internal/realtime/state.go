package realtime

import (
	"fmt"
	"slices"
	"sync"
)

// State is the connection state of a transport client. It is owned by
// the client; consumers only observe it.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. Disconnected is
// reachable from everywhere because Close() is always legal.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected},
	Connected:    {Reconnecting, Disconnected},
	Reconnecting: {Connecting, Disconnected},
}

// machine tracks and enforces connection state transitions, notifying
// an observer on every successful change.
type machine struct {
	mu      sync.RWMutex
	current State
	notify  func(from, to State)
}

func newMachine(notify func(from, to State)) *machine {
	return &machine{current: Disconnected, notify: notify}
}

// Current returns the current state.
func (m *machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed; state is unchanged in that case.
func (m *machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(from, to)
	}
	return nil
}
