package netmon

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/gymchat/internal/bus"
	"go.uber.org/zap"
)

// Monitor tracks connectivity from a native probe, falling back to an
// EventSource when no probe is available, and publishes net.status_changed
// on every transition.
type Monitor struct {
	probe    Source
	fallback *EventSource
	machine  *Machine
	logger   *zap.Logger

	mu     sync.RWMutex
	active Source
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. probe may be nil.
func NewMonitor(probe Source, fallback *EventSource, b *bus.Bus, logger *zap.Logger) *Monitor {
	if fallback == nil {
		fallback = NewEventSource(true)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probe:    probe,
		fallback: fallback,
		machine:  NewMachine(b),
		logger:   logger,
		kind:     KindUnknown,
	}
}

// Start takes the initial reading and begins watching for changes.
func (m *Monitor) Start(ctx context.Context) error {
	src, st, err := m.initial(ctx)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	ch, err := src.Watch(watchCtx)
	if err != nil {
		cancel()
		return err
	}

	m.mu.Lock()
	m.active = src
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.apply(st)

	go func() {
		defer close(done)
		for st := range ch {
			m.apply(st)
		}
	}()
	return nil
}

func (m *Monitor) initial(ctx context.Context) (Source, Status, error) {
	if m.probe != nil {
		st, err := m.probe.Status(ctx)
		if err == nil {
			m.logger.Info("network monitor using probe")
			return m.probe, st, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, Status{}, err
		}
		m.logger.Warn("native connectivity probe unavailable, using event fallback", zap.Error(err))
	} else {
		m.logger.Info("network monitor using event fallback")
	}
	st, err := m.fallback.Status(ctx)
	return m.fallback, st, err
}

func (m *Monitor) apply(st Status) {
	to := Offline
	if st.Connected {
		to = Online
	}

	m.mu.Lock()
	m.kind = st.Kind
	m.mu.Unlock()

	from := m.machine.Current()
	if from == to {
		return
	}
	if err := m.machine.Transition(to, st.Kind); err != nil {
		m.logger.Warn("connectivity transition rejected", zap.Error(err))
		return
	}
	m.logger.Info("connectivity changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("kind", st.Kind),
	)
}

// Stop ends watching. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Online reports whether the last reading was connected. Unknown counts as offline.
func (m *Monitor) Online() bool {
	return m.machine.Current() == Online
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	return m.machine.Current()
}

// Kind returns the connection type hint of the last reading.
func (m *Monitor) Kind() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// Fallback returns the event source used when no probe is available.
func (m *Monitor) Fallback() *EventSource {
	return m.fallback
}

// UsingFallback reports whether the monitor is driven by the event source.
func (m *Monitor) UsingFallback() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active == Source(m.fallback)
}
