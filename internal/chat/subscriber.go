package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/realtime"
	"github.com/matheus3301/gymchat/internal/remote"
	"go.uber.org/zap"
)

const (
	tableMessages = "messages"
	tableReceipts = "read_receipts"

	lookupTimeout = 5 * time.Second
)

// Subscribe opens the realtime subscription: message changes filtered to this
// conversation, and read receipt inserts for every conversation (matched
// locally). A no-op if already subscribed.
func (c *Conversation) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	sub, err := c.feed.Subscribe(ctx, "messages-"+c.id, []realtime.Filter{
		{Table: tableMessages, Event: realtime.All, Column: "conversation_id", Value: c.id},
		{Table: tableReceipts, Event: realtime.Insert},
	})
	if err != nil {
		return fmt.Errorf("subscribe conversation %s: %w", c.id, err)
	}

	router := realtime.NewRouter().
		On(tableMessages, realtime.Insert, c.onMessageInsert).
		On(tableMessages, realtime.Update, c.onMessageUpdate).
		On(tableReceipts, realtime.Insert, c.onReceiptInsert)

	done := make(chan struct{})
	c.mu.Lock()
	if c.sub != nil {
		// Lost a race with a concurrent Subscribe.
		c.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	c.sub = sub
	c.subDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := router.Run(sub)
		c.mu.Lock()
		if c.sub == sub {
			c.sub = nil
		}
		c.mu.Unlock()
		if err != nil && !errors.Is(err, realtime.ErrClosed) {
			c.logger.Warn("realtime subscription ended", zap.Error(err))
		}
	}()
	c.logger.Info("realtime subscribed")
	return nil
}

// Unsubscribe cancels the realtime subscription and waits for its handler to stop.
func (c *Conversation) Unsubscribe() {
	c.mu.Lock()
	sub, done := c.sub, c.subDone
	c.sub, c.subDone = nil, nil
	c.mu.Unlock()
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		c.logger.Debug("closing realtime subscription", zap.Error(err))
	}
	<-done
}

// Subscribed reports whether a live subscription exists.
func (c *Conversation) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub != nil
}

func (c *Conversation) onMessageInsert(ch realtime.Change) {
	msg, err := remote.DecodeMessage(ch.New)
	if err != nil {
		c.logger.Warn("dropping undecodable message insert", zap.Error(err))
		return
	}
	c.MergeInsert(msg)
}

func (c *Conversation) onMessageUpdate(ch realtime.Change) {
	msg, err := remote.DecodeMessage(ch.New)
	if err != nil {
		c.logger.Warn("dropping undecodable message update", zap.Error(err))
		return
	}
	c.MergeUpdate(msg)
}

func (c *Conversation) onReceiptInsert(ch realtime.Change) {
	rec, err := remote.DecodeReceipt(ch.New)
	if err != nil {
		c.logger.Warn("dropping undecodable read receipt", zap.Error(err))
		return
	}
	c.MergeReceipt(rec)
}

// MergeInsert applies a realtime INSERT. A known id is ignored. The viewer's
// own echo replaces the matching in-flight placeholder; anything else is appended.
// Reports whether the store changed.
func (c *Conversation) MergeInsert(msg model.Message) bool {
	if msg.ConversationID != c.id {
		return false
	}

	c.mu.Lock()
	if c.store.index(msg.ID) >= 0 {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	c.fillSender(ctx, &msg)
	cancel()

	c.mu.Lock()
	if c.store.index(msg.ID) >= 0 {
		c.mu.Unlock()
		return false
	}
	if msg.SenderID == c.viewer.UserID {
		if localID, ok := c.store.matchPending(msg); ok {
			c.store.replaceByID(localID, msg)
			c.mu.Unlock()
			c.logger.Debug("echo reconciled placeholder", zap.String("temp_id", localID), zap.String("message_id", msg.ID))
			c.publish(bus.KindMessageReplaced, Replaced{LocalID: localID, Message: msg.Clone()})
			return true
		}
	}
	c.store.append(msg)
	c.mu.Unlock()

	c.publish(bus.KindMessageUpserted, msg.Clone())
	return true
}

// MergeUpdate applies a realtime UPDATE to status, read and update timestamps.
// Unknown ids are ignored. Reports whether the store changed.
func (c *Conversation) MergeUpdate(msg model.Message) bool {
	if msg.ConversationID != c.id {
		return false
	}
	c.mu.Lock()
	changed := c.store.patchStatusByID(msg.ID, msg.Status, msg.ReadAt, msg.UpdatedAt)
	var snapshot model.Message
	if changed {
		m, _ := c.store.get(msg.ID)
		snapshot = m.Clone()
	}
	c.mu.Unlock()

	if changed {
		c.publish(bus.KindMessageStatusChanged, snapshot)
	}
	return changed
}
