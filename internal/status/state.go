package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/helpwire/deskd/internal/bus"
)

// State represents the connectivity of the real-time transport.
type State string

const (
	Offline    State = "OFFLINE"
	Connecting State = "CONNECTING"
	Online     State = "ONLINE"
	Degraded   State = "DEGRADED"
)

// validTransitions defines allowed connectivity transitions.
var validTransitions = map[State][]State{
	Offline:    {Connecting},
	Connecting: {Online, Offline},
	Online:     {Degraded, Offline},
	Degraded:   {Online, Connecting, Offline},
}

// Machine tracks and enforces connectivity state transitions. A transition
// into Online is the signal the daemon uses to reset every conversation's
// sync verdict.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine starting Offline.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Offline,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindNetStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for connectivity change events.
type StatusChange struct {
	From State
	To   State
}
