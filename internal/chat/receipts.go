package chat

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/model"
	"go.uber.org/zap"
)

// MergeReceipt applies a read receipt insert. Receipts for messages not in
// the store are ignored, as is a second receipt from the same user. A
// receipt from someone else on the viewer's own message marks it read.
// Reports whether the store changed.
func (c *Conversation) MergeReceipt(rec model.ReadReceipt) bool {
	c.mu.Lock()
	m, ok := c.store.get(rec.MessageID)
	if !ok || m.HasReceiptFrom(rec.UserID) {
		c.mu.Unlock()
		return false
	}
	if rec.ReaderName == "" {
		if p, ok := c.profiles[rec.UserID]; ok {
			rec.ReaderName = p.name
		}
	}
	m.Receipts = append(m.Receipts, rec)
	if rec.UserID != c.viewer.UserID && m.SenderID == c.viewer.UserID {
		m.Status = model.StatusRead
		if m.ReadAt == nil {
			t := rec.ReadAt
			if t.IsZero() {
				t = c.now()
			}
			m.ReadAt = &t
		}
	}
	status := m.Status
	c.mu.Unlock()

	c.publish(bus.KindReceiptAdded, ReceiptAdded{Receipt: rec, Status: status})
	return true
}

// MarkRead records that the viewer has seen the conversation: the bulk
// receipt RPC and the last-read watermark update run in the background.
// Failures are logged and never block the caller.
func (c *Conversation) MarkRead(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	c.spawn(func() {
		if err := c.markRead(ctx); err != nil {
			c.logger.Warn("mark read failed", zap.Error(err))
		}
	})
}

func (c *Conversation) markRead(ctx context.Context) error {
	at := c.now()
	var errs []error

	if err := c.remote.MarkMessagesRead(ctx, c.id, c.viewer.UserID); err != nil {
		errs = append(errs, &ReceiptError{ConversationID: c.id, Op: "mark_messages_read", Err: err})
	}
	watermarkErr := c.remote.UpdateLastRead(ctx, c.id, c.viewer.UserID, at)
	if watermarkErr != nil {
		errs = append(errs, &ReceiptError{ConversationID: c.id, Op: "update_last_read", Err: watermarkErr})
	}
	if c.readStates != nil {
		if err := c.readStates.SaveReadState(ctx, c.id, at, watermarkErr == nil); err != nil {
			errs = append(errs, &ReceiptError{ConversationID: c.id, Op: "save_read_state", Err: err})
		}
	}
	return errors.Join(errs...)
}

// UnreadCount counts messages from others newer than the local watermark.
func (c *Conversation) UnreadCount(ctx context.Context) (int, error) {
	var watermark time.Time
	if c.readStates != nil {
		rs, err := c.readStates.GetReadState(ctx, c.id)
		if err != nil {
			return 0, err
		}
		if rs != nil {
			watermark = rs.LastReadAt
		}
	}
	return model.UnreadCount(c.Messages(), c.viewer.UserID, watermark), nil
}
