package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/model"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Storage is the durable key-value store the queue persists into.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SendFunc delivers one dequeued message.
type SendFunc func(ctx context.Context, msg model.QueuedMessage) error

// Options tunes drain behaviour.
type Options struct {
	// DrainRate caps sends per second during a drain. Zero means unlimited.
	DrainRate float64
	// RequeueFailed re-appends items whose send failed mid-drain instead of dropping them.
	RequeueFailed bool
}

// DrainResult summarizes one drain.
type DrainResult struct {
	ConversationID string
	Sent           int
	Failed         []*DrainError
	Requeued       int
}

// KeyPrefix starts every queue's storage key.
const KeyPrefix = "message_queue_"

// Key returns the durable storage key for a conversation's queue.
func Key(conversationID string) string {
	return KeyPrefix + conversationID
}

// Index is a Storage that can enumerate and remove keys.
type Index interface {
	Storage
	Keys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Pending returns the conversations whose persisted queue is non-empty.
// Keys holding an empty queue are deleted along the way.
func Pending(ctx context.Context, idx Index) ([]string, error) {
	keys, err := idx.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	var ids []string
	for _, key := range keys {
		raw, ok, err := idx.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read queue %s: %w", key, err)
		}
		var items []model.QueuedMessage
		if ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return nil, fmt.Errorf("decode queue %s: %w", key, err)
			}
		}
		if len(items) == 0 {
			if err := idx.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("delete queue %s: %w", key, err)
			}
			continue
		}
		ids = append(ids, strings.TrimPrefix(key, KeyPrefix))
	}
	return ids, nil
}

// Queue is the durable FIFO of messages written while offline, scoped to one conversation.
type Queue struct {
	conversationID string
	storage        Storage
	opts           Options
	limiter        *rate.Limiter
	bus            *bus.Bus
	logger         *zap.Logger

	// persistMu orders writes to storage. It is taken before mu and held
	// from the snapshot through Set, so a stale list never lands last.
	persistMu sync.Mutex

	mu       sync.Mutex
	items    []model.QueuedMessage
	draining bool
}

// New creates an empty queue for a conversation. Call Load to restore persisted items.
func New(conversationID string, storage Storage, opts Options, b *bus.Bus, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.DrainRate > 0 {
		limit = rate.Limit(opts.DrainRate)
	}
	return &Queue{
		conversationID: conversationID,
		storage:        storage,
		opts:           opts,
		limiter:        rate.NewLimiter(limit, 1),
		bus:            b,
		logger:         logger.With(zap.String("conversation_id", conversationID)),
	}
}

// Load restores the queue from durable storage, replacing the in-memory list.
func (q *Queue) Load(ctx context.Context) ([]model.QueuedMessage, error) {
	raw, ok, err := q.storage.Get(ctx, Key(q.conversationID))
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	var items []model.QueuedMessage
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("decode queue: %w", err)
		}
	}

	q.mu.Lock()
	q.items = items
	out := append([]model.QueuedMessage(nil), items...)
	q.mu.Unlock()

	if len(out) > 0 {
		q.logger.Info("restored offline queue", zap.Int("queue_len", len(out)))
	}
	return out, nil
}

// Enqueue appends msg and persists the whole list. The item stays queued in
// memory even if persisting fails; the error is returned to the caller.
func (q *Queue) Enqueue(ctx context.Context, msg model.QueuedMessage) error {
	q.persistMu.Lock()
	q.mu.Lock()
	q.items = append(q.items, msg)
	snapshot := append([]model.QueuedMessage(nil), q.items...)
	q.mu.Unlock()
	err := q.persist(ctx, snapshot)
	q.persistMu.Unlock()

	if err != nil {
		q.logger.Error("failed to persist queue", zap.Error(err), zap.String("local_id", msg.LocalID))
		return err
	}
	q.bus.Publish(bus.Event{
		Kind:           bus.KindQueueEnqueued,
		ConversationID: q.conversationID,
		Payload:        msg,
	})
	return nil
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Contains reports whether an item with localID is waiting in the queue.
func (q *Queue) Contains(localID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.LocalID == localID {
			return true
		}
	}
	return false
}

// Items returns a copy of the queued items in FIFO order.
func (q *Queue) Items() []model.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.QueuedMessage(nil), q.items...)
}

// Drain sends every queued item through send in FIFO order. It is a no-op when
// offline, empty, or already draining. Memory and durable storage are cleared
// before the first send, so a crash mid-drain never resends an item.
// A failed item does not stop the drain and does not roll back earlier sends.
func (q *Queue) Drain(ctx context.Context, online bool, send SendFunc) (*DrainResult, error) {
	res := &DrainResult{ConversationID: q.conversationID}
	if !online {
		return res, nil
	}

	q.persistMu.Lock()
	q.mu.Lock()
	if q.draining || len(q.items) == 0 {
		q.mu.Unlock()
		q.persistMu.Unlock()
		return res, nil
	}
	q.draining = true
	snapshot := q.items
	q.items = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	if err := q.persist(ctx, nil); err != nil {
		// Nothing was sent and nothing could be enqueued meanwhile.
		q.mu.Lock()
		q.items = append(snapshot, q.items...)
		q.mu.Unlock()
		q.persistMu.Unlock()
		return res, fmt.Errorf("clear queue: %w", err)
	}
	q.persistMu.Unlock()

	q.logger.Info("draining offline queue", zap.Int("queue_len", len(snapshot)))
	for _, item := range snapshot {
		if err := q.limiter.Wait(ctx); err != nil {
			res.Failed = append(res.Failed, &DrainError{ConversationID: q.conversationID, LocalID: item.LocalID, Err: err})
			q.requeue(ctx, item, res)
			continue
		}
		if err := send(ctx, item); err != nil {
			derr := &DrainError{ConversationID: q.conversationID, LocalID: item.LocalID, Err: err}
			q.logger.Warn("queued message failed during drain", zap.Error(derr), zap.String("local_id", item.LocalID))
			res.Failed = append(res.Failed, derr)
			q.requeue(ctx, item, res)
			continue
		}
		res.Sent++
	}

	q.bus.Publish(bus.Event{
		Kind:           bus.KindQueueDrained,
		ConversationID: q.conversationID,
		Payload:        *res,
	})
	return res, nil
}

func (q *Queue) requeue(ctx context.Context, item model.QueuedMessage, res *DrainResult) {
	if !q.opts.RequeueFailed {
		return
	}
	if err := q.Enqueue(ctx, item); err != nil {
		return
	}
	res.Requeued++
}

func (q *Queue) persist(ctx context.Context, items []model.QueuedMessage) error {
	if items == nil {
		items = []model.QueuedMessage{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	return q.storage.Set(ctx, Key(q.conversationID), string(data))
}
