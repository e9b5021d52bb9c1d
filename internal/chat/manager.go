package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/identity"
	"github.com/matheus3301/gymchat/internal/netmon"
	"github.com/matheus3301/gymchat/internal/queue"
	"github.com/matheus3301/gymchat/internal/realtime"
	"go.uber.org/zap"
)

// ManagerConfig holds the collaborators shared by every open conversation.
type ManagerConfig struct {
	Viewer     *identity.Identity
	Remote     Remote
	Feed       realtime.Feed
	Net        Connectivity
	Storage    queue.Storage
	ReadStates ReadStates
	Queue      queue.Options
	Bus        *bus.Bus
	Logger     *zap.Logger
	Now        func() time.Time
}

// Manager owns the open conversations of a session and drains their offline
// queues when connectivity returns.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	mu      sync.Mutex
	convs   map[string]*Conversation
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewManager creates a manager with no open conversations.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		convs:  make(map[string]*Conversation),
	}
}

// Viewer returns the session identity.
func (m *Manager) Viewer() *identity.Identity {
	return m.cfg.Viewer
}

// Start listens for connectivity changes.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	ch, unsub := m.cfg.Bus.Subscribe("net.", 16)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(netmon.StatusChange)
				if ok && change.Reconnected() {
					m.onReconnect(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop closes every conversation and stops listening. It waits for
// in-flight drains and read markers; no new ones start afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	convs := m.convs
	m.convs = make(map[string]*Conversation)
	m.mu.Unlock()
	for _, c := range convs {
		c.Close()
	}
}

// Open opens a conversation, or returns it if already open: the persisted
// queue is restored, messages are loaded, the realtime subscription is
// established and the conversation is marked read. A failed load is
// returned as *LoadError together with the conversation, which stays open
// so sends still queue; the load is retried on the next Open and on reconnect.
func (m *Manager) Open(ctx context.Context, conversationID string) (*Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("open conversation: empty id")
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, fmt.Errorf("open %s: %w", conversationID, ErrStopped)
	}
	if c, ok := m.convs[conversationID]; ok {
		m.mu.Unlock()
		return c, m.reload(ctx, c)
	}
	m.mu.Unlock()

	c := New(Options{
		ConversationID: conversationID,
		Viewer:         m.cfg.Viewer,
		Remote:         m.cfg.Remote,
		Feed:           m.cfg.Feed,
		Net:            m.cfg.Net,
		Storage:        m.cfg.Storage,
		ReadStates:     m.cfg.ReadStates,
		Queue:          m.cfg.Queue,
		Bus:            m.cfg.Bus,
		Logger:         m.logger,
		Now:            m.cfg.Now,
	})
	c.spawn = m.spawn

	restored, err := c.RestoreQueue(ctx)
	if err != nil {
		c.logger.Error("failed to restore offline queue", zap.Error(err))
	}
	_, loadErr := c.Load(ctx)
	if err := c.Subscribe(ctx); err != nil {
		c.logger.Warn("realtime unavailable, continuing without live updates", zap.Error(err))
	}

	m.mu.Lock()
	if existing, ok := m.convs[conversationID]; ok {
		m.mu.Unlock()
		c.Unsubscribe()
		return existing, m.reload(ctx, existing)
	}
	m.convs[conversationID] = c
	m.mu.Unlock()

	if loadErr == nil {
		c.MarkRead(ctx)
	}
	if restored > 0 && c.net.Online() {
		m.drainAsync(ctx, c)
	}
	m.cfg.Bus.Publish(bus.Event{Kind: bus.KindConversationOpened, ConversationID: conversationID})
	c.logger.Info("conversation opened", zap.Int("queue_len", restored), zap.Bool("loaded", loadErr == nil))
	return c, loadErr
}

// reload loads an open conversation whose earlier load failed.
func (m *Manager) reload(ctx context.Context, c *Conversation) error {
	if c.Loaded() {
		return nil
	}
	if _, err := c.Load(ctx); err != nil {
		return err
	}
	c.MarkRead(ctx)
	return nil
}

// Get returns an open conversation.
func (m *Manager) Get(conversationID string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	return c, ok
}

// Close closes an open conversation.
func (m *Manager) Close(conversationID string) error {
	m.mu.Lock()
	c, ok := m.convs[conversationID]
	delete(m.convs, conversationID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("close %s: %w", conversationID, ErrNotOpen)
	}
	c.Close()
	return nil
}

// List returns the ids of open conversations, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.convs))
	for id := range m.convs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

func (m *Manager) conversations() []*Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conversation, 0, len(m.convs))
	for _, c := range m.convs {
		out = append(out, c)
	}
	return out
}

// ResumeQueued opens every conversation that is not open but has a persisted
// offline queue, so the queue drains without waiting for the user. It is a
// no-op offline or when the storage cannot enumerate queues.
func (m *Manager) ResumeQueued(ctx context.Context) (int, error) {
	idx, ok := m.cfg.Storage.(queue.Index)
	if !ok || !m.cfg.Net.Online() {
		return 0, nil
	}
	ids, err := queue.Pending(ctx, idx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	var errs []error
	for _, id := range ids {
		if _, open := m.Get(id); open {
			continue
		}
		c, err := m.Open(ctx, id)
		if err != nil {
			errs = append(errs, err)
		}
		if c != nil {
			resumed++
		}
	}
	if resumed > 0 {
		m.logger.Info("resumed conversations with queued messages", zap.Int("conversations", resumed))
	}
	return resumed, errors.Join(errs...)
}

func (m *Manager) onReconnect(ctx context.Context) {
	if _, err := m.ResumeQueued(ctx); err != nil {
		m.logger.Warn("resuming queued conversations failed", zap.Error(err))
	}
	convs := m.conversations()
	m.logger.Info("connectivity restored", zap.Int("conversations", len(convs)))
	for _, c := range convs {
		if err := m.reload(ctx, c); err != nil {
			c.logger.Warn("reload after reconnect failed", zap.Error(err))
		}
		if !c.Subscribed() {
			if err := c.Subscribe(ctx); err != nil {
				c.logger.Warn("resubscribe failed", zap.Error(err))
			}
		}
		m.drainAsync(ctx, c)
	}
}

func (m *Manager) drainAsync(ctx context.Context, c *Conversation) {
	ctx = context.WithoutCancel(ctx)
	m.spawn(func() {
		_, _ = c.DrainQueue(ctx)
	})
}

// spawn runs fn in a goroutine Stop waits for. After Stop it does nothing.
func (m *Manager) spawn(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}
