package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/identity"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/realtime"
	"github.com/matheus3301/gymchat/internal/remote"
	"github.com/matheus3301/gymchat/internal/store"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

const viewerID = "me"

// fakeRemote records calls and assigns sequential server ids.
type fakeRemote struct {
	mu       sync.Mutex
	list     []model.Message
	listErr  error
	inserts  []model.Draft
	fail     map[string]bool
	onInsert func(d model.Draft, m model.Message)
	next     int

	markErr     error
	lastReadErr error
	markGate    chan struct{}
	markCalls   chan string
	readCalls   chan time.Time
	profiles    map[string]remote.ProfileRow
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		fail:      make(map[string]bool),
		markCalls: make(chan string, 8),
		readCalls: make(chan time.Time, 8),
		profiles:  make(map[string]remote.ProfileRow),
	}
}

func (f *fakeRemote) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Message(nil), f.list...), nil
}

func (f *fakeRemote) InsertMessage(_ context.Context, d model.Draft) (model.Message, error) {
	f.mu.Lock()
	f.inserts = append(f.inserts, d)
	if f.fail[d.Content] {
		f.mu.Unlock()
		return model.Message{}, errors.New("insert failed")
	}
	f.next++
	m := model.Message{
		ID:             fmt.Sprintf("srv-%d", f.next),
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Kind:           d.Kind,
		MediaURL:       d.MediaURL,
		Status:         model.StatusSent,
		CreatedAt:      base.Add(time.Duration(f.next) * time.Minute),
		UpdatedAt:      base.Add(time.Duration(f.next) * time.Minute),
	}
	hook := f.onInsert
	f.mu.Unlock()
	if hook != nil {
		hook(d, m)
	}
	return m, nil
}

func (f *fakeRemote) MarkMessagesRead(_ context.Context, conversationID, _ string) error {
	if f.markGate != nil {
		<-f.markGate
	}
	select {
	case f.markCalls <- conversationID:
	default:
	}
	return f.markErr
}

func (f *fakeRemote) UpdateLastRead(_ context.Context, _, _ string, at time.Time) error {
	select {
	case f.readCalls <- at:
	default:
	}
	return f.lastReadErr
}

func (f *fakeRemote) Profile(_ context.Context, userID string) (remote.ProfileRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return remote.ProfileRow{}, remote.ErrNotFound
	}
	return p, nil
}

func (f *fakeRemote) insertedContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inserts))
	for i, d := range f.inserts {
		out[i] = d.Content
	}
	return out
}

// switchable is a Connectivity flag tests can flip.
type switchable struct{ on atomic.Bool }

func online(v bool) *switchable {
	s := &switchable{}
	s.on.Store(v)
	return s
}

func (s *switchable) Online() bool { return s.on.Load() }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	conv   *Conversation
	remote *fakeRemote
	net    *switchable
	feed   *realtime.MemoryFeed
	db     *store.DB
	bus    *bus.Bus
}

func newFixture(t *testing.T, isOnline bool) *fixture {
	t.Helper()
	f := &fixture{
		remote: newFakeRemote(),
		net:    online(isOnline),
		feed:   realtime.NewMemoryFeed(),
		db:     testDB(t),
		bus:    bus.New(),
	}
	tick := base
	var mu sync.Mutex
	f.conv = New(Options{
		ConversationID: "c1",
		Viewer:         &identity.Identity{UserID: viewerID, DisplayName: "Me"},
		Remote:         f.remote,
		Feed:           f.feed,
		Net:            f.net,
		Storage:        f.db,
		ReadStates:     f.db,
		Bus:            f.bus,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		},
	})
	t.Cleanup(f.conv.Close)
	return f
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertSorted(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("created_at decreases at %d: %v", i, ids(msgs))
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
