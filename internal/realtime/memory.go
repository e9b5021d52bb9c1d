package realtime

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
)

// MemoryFeed is an in-process Feed. Emit delivers a change to every open
// subscription whose filters match it.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[int]*memorySub
	next int
}

// NewMemoryFeed creates an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]*memorySub)}
}

func (f *MemoryFeed) Subscribe(_ context.Context, _ string, filters []Filter) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	s := &memorySub{
		feed:    f,
		id:      id,
		filters: append([]Filter(nil), filters...),
		ch:      make(chan Change, 64),
	}
	f.subs[id] = s
	return s, nil
}

// Emit delivers c to matching subscriptions, blocking until each has room.
func (f *MemoryFeed) Emit(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.matches(c) {
			s.ch <- c
		}
	}
}

// Fail ends every open subscription with err, as a dropped connection would.
func (f *MemoryFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subs {
		s.end(err)
		delete(f.subs, id)
	}
}

// Open returns the number of live subscriptions.
func (f *MemoryFeed) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type memorySub struct {
	feed    *MemoryFeed
	id      int
	filters []Filter
	ch      chan Change

	once sync.Once
	err  error
}

func (s *memorySub) matches(c Change) bool {
	for _, f := range s.filters {
		if f.Table != c.Table {
			continue
		}
		if ev := f.event(); ev != All && ev != c.Type {
			continue
		}
		if f.Column != "" && gjson.GetBytes(c.New, f.Column).String() != f.Value {
			continue
		}
		return true
	}
	return false
}

func (s *memorySub) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

func (s *memorySub) Changes() <-chan Change { return s.ch }

func (s *memorySub) Err() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	return s.err
}

func (s *memorySub) Close() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.subs, s.id)
	s.end(ErrClosed)
	return nil
}
