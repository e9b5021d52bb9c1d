package netmon

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/gymchat/internal/bus"
)

// State is the connectivity state seen by the monitor.
type State string

const (
	Unknown State = "UNKNOWN"
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Unknown: {Online, Offline},
	Online:  {Offline},
	Offline: {Online},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Unknown state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Unknown,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// kind is the connection type hint carried on the published event.
func (m *Machine) Transition(to State, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind: bus.KindNetStatusChanged,
		Payload: StatusChange{
			From: from,
			To:   to,
			Kind: kind,
		},
	})
	return nil
}

// StatusChange is the payload for connectivity change events.
type StatusChange struct {
	From State
	To   State
	Kind string
}

// Reconnected reports whether the change is the offline->online edge that drains queues.
func (c StatusChange) Reconnected() bool {
	return c.From == Offline && c.To == Online
}
