package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/queue"
	"go.uber.org/zap"
)

// Send runs the send pipeline. Blank content is a no-op returning (nil, nil).
// Offline, the message is queued behind a queued_ placeholder. Online, a
// temp_ placeholder is shown and replaced by the server copy once the insert
// returns. On insert failure the placeholder is kept, marked failed, and a
// *SendError is returned.
func (c *Conversation) Send(ctx context.Context, content string, kind model.Kind, mediaURL string) (*model.Message, error) {
	if blank(content) {
		return nil, nil
	}
	if kind == "" {
		kind = model.KindText
	}
	now := c.now()
	draft := model.Draft{
		ConversationID: c.id,
		SenderID:       c.viewer.UserID,
		Content:        content,
		Kind:           kind,
		MediaURL:       mediaURL,
	}

	if !c.net.Online() {
		id := model.NewQueuedID(now)
		placeholder := c.addPlaceholder(id, draft, now)
		item := model.QueuedMessage{
			LocalID:        id,
			ConversationID: c.id,
			Content:        content,
			Kind:           kind,
			MediaURL:       mediaURL,
			QueuedAt:       now,
		}
		if err := c.queue.Enqueue(ctx, item); err != nil {
			// Still queued in memory; it will be delivered unless the daemon restarts first.
			c.logger.Error("queued message not persisted", zap.String("temp_id", id), zap.Error(err))
		}
		c.logger.Info("message queued while offline", zap.String("temp_id", id), zap.Int("queue_len", c.queue.Len()))
		return &placeholder, nil
	}

	id := model.NewTempID(now)
	c.addPlaceholder(id, draft, now)
	return c.deliver(ctx, id, draft)
}

// Retry re-runs the send pipeline for a failed placeholder, reusing it.
func (c *Conversation) Retry(ctx context.Context, localID string) (*model.Message, error) {
	c.mu.Lock()
	m, ok := c.store.get(localID)
	if !ok || !m.Pending() {
		c.mu.Unlock()
		return nil, fmt.Errorf("retry %s: %w", localID, ErrUnknownMessage)
	}
	if m.Status != model.StatusFailed {
		c.mu.Unlock()
		return nil, fmt.Errorf("retry %s: %w", localID, ErrNotRetryable)
	}
	m.Status = model.StatusSending
	m.UpdatedAt = c.now()
	snapshot := m.Clone()
	c.mu.Unlock()

	c.publish(bus.KindMessageStatusChanged, snapshot)
	draft := model.Draft{
		ConversationID: c.id,
		SenderID:       snapshot.SenderID,
		Content:        snapshot.Content,
		Kind:           snapshot.Kind,
		MediaURL:       snapshot.MediaURL,
	}

	if !c.net.Online() {
		item := model.QueuedMessage{
			LocalID:        localID,
			ConversationID: c.id,
			Content:        draft.Content,
			Kind:           draft.Kind,
			MediaURL:       draft.MediaURL,
			QueuedAt:       c.now(),
		}
		if err := c.queue.Enqueue(ctx, item); err != nil {
			c.logger.Error("queued retry not persisted", zap.String("temp_id", localID), zap.Error(err))
		}
		return &snapshot, nil
	}
	return c.deliver(ctx, localID, draft)
}

// DrainQueue sends every queued message in FIFO order if online.
func (c *Conversation) DrainQueue(ctx context.Context) (*queue.DrainResult, error) {
	res, err := c.queue.Drain(ctx, c.net.Online(), c.sendQueued)
	if err != nil {
		c.logger.Error("queue drain aborted", zap.Error(err))
		return res, err
	}
	if res.Sent > 0 || len(res.Failed) > 0 {
		c.logger.Info("offline queue drained",
			zap.Int("sent", res.Sent),
			zap.Int("failed", len(res.Failed)),
			zap.Int("requeued", res.Requeued),
		)
	}
	return res, nil
}

// RestoreQueue loads the persisted queue and shows each item as a placeholder.
func (c *Conversation) RestoreQueue(ctx context.Context) (int, error) {
	items, err := c.queue.Load(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		c.ensurePlaceholder(item)
	}
	return len(items), nil
}

func (c *Conversation) sendQueued(ctx context.Context, item model.QueuedMessage) error {
	c.ensurePlaceholder(item)
	draft := model.Draft{
		ConversationID: c.id,
		SenderID:       c.viewer.UserID,
		Content:        item.Content,
		Kind:           item.Kind,
		MediaURL:       item.MediaURL,
	}
	msg, err := c.remote.InsertMessage(ctx, draft)
	if err != nil {
		if !c.requeue {
			c.markFailed(item.LocalID, err)
		}
		return err
	}
	c.fillSender(ctx, &msg)
	c.reconcile(item.LocalID, msg)
	return nil
}

// deliver inserts draft remotely and reconciles the placeholder localID.
func (c *Conversation) deliver(ctx context.Context, localID string, draft model.Draft) (*model.Message, error) {
	msg, err := c.remote.InsertMessage(ctx, draft)
	if err != nil {
		c.markFailed(localID, err)
		return nil, &SendError{ConversationID: c.id, LocalID: localID, Err: err}
	}
	c.fillSender(ctx, &msg)
	c.reconcile(localID, msg)
	c.logger.Info("message sent", zap.String("temp_id", localID), zap.String("message_id", msg.ID))
	return &msg, nil
}

func (c *Conversation) placeholder(id string, d model.Draft, at time.Time) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: c.id,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Kind:           d.Kind,
		MediaURL:       d.MediaURL,
		Status:         model.StatusSending,
		CreatedAt:      at,
		UpdatedAt:      at,
		SenderName:     c.viewer.DisplayName,
	}
}

func (c *Conversation) addPlaceholder(id string, d model.Draft, at time.Time) model.Message {
	m := c.placeholder(id, d, at)
	c.mu.Lock()
	c.store.append(m)
	c.mu.Unlock()
	c.publish(bus.KindMessageUpserted, m.Clone())
	return m
}

// ensurePlaceholder shows a queued item if its placeholder is missing.
func (c *Conversation) ensurePlaceholder(item model.QueuedMessage) {
	if item.LocalID == "" {
		return
	}
	m := c.placeholder(item.LocalID, model.Draft{
		SenderID: c.viewer.UserID,
		Content:  item.Content,
		Kind:     item.Kind,
		MediaURL: item.MediaURL,
	}, item.QueuedAt)

	c.mu.Lock()
	added := c.store.append(m)
	c.mu.Unlock()
	if added {
		c.publish(bus.KindMessageUpserted, m.Clone())
	}
}

func (c *Conversation) markFailed(localID string, cause error) {
	c.mu.Lock()
	m, ok := c.store.get(localID)
	if ok {
		m.Status = model.StatusFailed
		m.UpdatedAt = c.now()
	}
	c.mu.Unlock()

	c.logger.Warn("message send failed", zap.String("temp_id", localID), zap.Error(cause))
	c.publish(bus.KindMessageSendFailed, SendFailed{LocalID: localID, Error: cause.Error()})
}

// reconcile swaps placeholder localID for its server copy. If the realtime
// echo got there first the placeholder is dropped; if the placeholder is
// already gone the server copy is added unless present.
func (c *Conversation) reconcile(localID string, msg model.Message) {
	c.mu.Lock()
	var (
		kind   string
		result model.Message
	)
	switch {
	case c.store.replaceByID(localID, msg):
		kind = bus.KindMessageReplaced
		if m, ok := c.store.get(msg.ID); ok {
			result = m.Clone()
		}
	case c.store.append(msg):
		kind = bus.KindMessageUpserted
		result = msg.Clone()
	}
	c.mu.Unlock()

	switch kind {
	case bus.KindMessageReplaced:
		c.publish(kind, Replaced{LocalID: localID, Message: result})
	case bus.KindMessageUpserted:
		c.publish(kind, result)
	}
}
