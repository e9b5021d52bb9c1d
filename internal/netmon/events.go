package netmon

import (
	"context"
	"sync"
)

// EventSource is the fallback Source driven by explicit online/offline
// notifications. It never knows the connection type.
type EventSource struct {
	mu        sync.Mutex
	connected bool
	watchers  map[int]chan Status
	next      int
}

// NewEventSource creates a source whose initial reading is connected.
func NewEventSource(connected bool) *EventSource {
	return &EventSource{
		connected: connected,
		watchers:  make(map[int]chan Status),
	}
}

// SetOnline records an online notification.
func (s *EventSource) SetOnline() { s.set(true) }

// SetOffline records an offline notification.
func (s *EventSource) SetOffline() { s.set(false) }

func (s *EventSource) set(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == connected {
		return
	}
	s.connected = connected
	st := s.status()
	for _, ch := range s.watchers {
		select {
		case ch <- st:
		default:
			// Watcher is behind; drop the stale reading and keep the newest.
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func (s *EventSource) status() Status {
	if s.connected {
		return Status{Connected: true, Kind: KindUnknown}
	}
	return Status{Connected: false, Kind: KindNone}
}

func (s *EventSource) Status(context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status(), nil
}

func (s *EventSource) Watch(ctx context.Context) (<-chan Status, error) {
	ch := make(chan Status, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = ch
	s.mu.Unlock()

	out := make(chan Status)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()
		for {
			select {
			case st := <-ch:
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
