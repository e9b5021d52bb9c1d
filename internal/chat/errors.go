package chat

import (
	"errors"
	"fmt"

	"github.com/matheus3301/gymchat/internal/queue"
)

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrNotRetryable   = errors.New("message is not in failed state")
	ErrNotOpen        = errors.New("conversation not open")
	ErrStopped        = errors.New("conversation manager stopped")
)

// LoadError reports that fetching a conversation's messages failed. The
// conversation stays open and can still queue sends.
type LoadError struct {
	ConversationID string
	Err            error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load conversation %s: %v", e.ConversationID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SendError reports a failed remote insert. The placeholder stays in the store.
type SendError struct {
	ConversationID string
	LocalID        string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s in conversation %s: %v", e.LocalID, e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// QueueDrainError reports one queued item that failed mid-drain.
type QueueDrainError = queue.DrainError

// ReceiptError reports a failed read-marking call. It is logged, never surfaced.
type ReceiptError struct {
	ConversationID string
	Op             string
	Err            error
}

func (e *ReceiptError) Error() string {
	return fmt.Sprintf("%s for conversation %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *ReceiptError) Unwrap() error { return e.Err }
