package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/identity"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/queue"
	"github.com/matheus3301/gymchat/internal/realtime"
	"go.uber.org/zap"
)

// Options wires a Conversation to its collaborators.
type Options struct {
	ConversationID string
	Viewer         *identity.Identity
	Remote         Remote
	Feed           realtime.Feed
	Net            Connectivity
	Storage        queue.Storage
	ReadStates     ReadStates
	Queue          queue.Options
	Bus            *bus.Bus
	Logger         *zap.Logger
	Now            func() time.Time
}

// Conversation is the sync state of one open conversation: its local message
// store, offline queue and realtime subscription.
type Conversation struct {
	id         string
	viewer     *identity.Identity
	remote     Remote
	feed       realtime.Feed
	net        Connectivity
	readStates ReadStates
	queue      *queue.Queue
	requeue    bool
	bus        *bus.Bus
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	store    messageList
	profiles map[string]profile
	sub      realtime.Subscription
	subDone  chan struct{}
	loaded   bool
	closed   bool

	// spawn runs background work; the manager swaps in one that tracks shutdown.
	spawn func(func())
}

type profile struct {
	name   string
	avatar string
}

// State is a point-in-time view of a conversation's sync state.
type State struct {
	ConversationID string
	Online         bool
	Subscribed     bool
	QueueLen       int
	Messages       int
	Pending        int
	Loaded         bool
}

// New creates a conversation. Nothing is fetched until Load.
func New(opts Options) *Conversation {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("conversation_id", opts.ConversationID))
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	net := opts.Net
	if net == nil {
		net = staticConnectivity(true)
	}
	viewer := opts.Viewer
	if viewer == nil {
		viewer = &identity.Identity{}
	}
	return &Conversation{
		id:         opts.ConversationID,
		viewer:     viewer,
		remote:     opts.Remote,
		feed:       opts.Feed,
		net:        net,
		readStates: opts.ReadStates,
		queue:      queue.New(opts.ConversationID, opts.Storage, opts.Queue, opts.Bus, logger),
		requeue:    opts.Queue.RequeueFailed,
		bus:        opts.Bus,
		logger:     logger,
		now:        now,
		profiles:   make(map[string]profile),
		spawn:      func(fn func()) { go fn() },
	}
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Load fetches the conversation's messages, replacing confirmed messages in
// the store while keeping local placeholders. A failure is returned as *LoadError.
func (c *Conversation) Load(ctx context.Context) ([]model.Message, error) {
	msgs, err := c.remote.ListMessages(ctx, c.id)
	if err != nil {
		c.logger.Error("failed to load messages", zap.Error(err))
		return nil, &LoadError{ConversationID: c.id, Err: err}
	}

	c.mu.Lock()
	c.store.reset(msgs)
	c.loaded = true
	for _, m := range msgs {
		c.rememberProfile(m.SenderID, m.SenderName, m.SenderAvatar)
	}
	out := c.store.snapshot()
	c.mu.Unlock()

	c.logger.Info("conversation loaded", zap.Int("messages", len(out)))
	return out, nil
}

// Loaded reports whether a Load has succeeded.
func (c *Conversation) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Queued reports whether localID is waiting in the offline queue.
func (c *Conversation) Queued(localID string) bool {
	return c.queue.Contains(localID)
}

// Messages returns a copy of the store in display order.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.snapshot()
}

// Message returns a copy of one message.
func (c *Conversation) Message(id string) (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.store.get(id)
	if !ok {
		return model.Message{}, false
	}
	return m.Clone(), true
}

// State reports the conversation's sync state.
func (c *Conversation) State() State {
	c.mu.Lock()
	st := State{
		ConversationID: c.id,
		Online:         c.net.Online(),
		Subscribed:     c.sub != nil,
		Messages:       len(c.store.msgs),
		Loaded:         c.loaded,
	}
	for i := range c.store.msgs {
		if c.store.msgs[i].Pending() {
			st.Pending++
		}
	}
	c.mu.Unlock()
	st.QueueLen = c.queue.Len()
	return st
}

// Close tears down the realtime subscription. In-flight sends are not cancelled.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Unsubscribe()
	c.bus.Publish(bus.Event{Kind: bus.KindConversationClosed, ConversationID: c.id})
	c.logger.Info("conversation closed")
}

// rememberProfile caches display fields. Caller holds c.mu.
func (c *Conversation) rememberProfile(userID, name, avatar string) {
	if userID == "" || name == "" {
		return
	}
	c.profiles[userID] = profile{name: name, avatar: avatar}
}

// senderProfile resolves display fields for userID from the viewer identity,
// the cache, or the remote profiles table.
func (c *Conversation) senderProfile(ctx context.Context, userID string) (profile, bool) {
	if userID == c.viewer.UserID && c.viewer.DisplayName != "" {
		return profile{name: c.viewer.DisplayName}, true
	}
	c.mu.Lock()
	p, ok := c.profiles[userID]
	c.mu.Unlock()
	if ok {
		return p, true
	}

	row, err := c.remote.Profile(ctx, userID)
	if err != nil {
		c.logger.Debug("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		return profile{}, false
	}
	p = profile{name: row.FullName, avatar: row.AvatarURL}
	c.mu.Lock()
	c.rememberProfile(userID, p.name, p.avatar)
	c.mu.Unlock()
	return p, p.name != ""
}

func (c *Conversation) fillSender(ctx context.Context, m *model.Message) {
	if m.SenderName != "" {
		return
	}
	if p, ok := c.senderProfile(ctx, m.SenderID); ok {
		m.SenderName = p.name
		if m.SenderAvatar == "" {
			m.SenderAvatar = p.avatar
		}
	}
}

func (c *Conversation) publish(kind string, payload any) {
	c.bus.Publish(bus.Event{Kind: kind, ConversationID: c.id, Payload: payload})
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
