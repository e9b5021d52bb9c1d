package bus

import "time"

// Event kinds published by the sync subsystem. Subscribers filter by prefix,
// e.g. "message." or "net.".
const (
	KindConversationOpened = "conversation.opened"
	KindConversationClosed = "conversation.closed"

	KindMessageUpserted      = "message.upserted"
	KindMessageReplaced      = "message.replaced"
	KindMessageStatusChanged = "message.status_changed"
	KindMessageSendFailed    = "message.send_failed"

	KindReceiptAdded = "receipt.added"

	KindQueueEnqueued = "queue.enqueued"
	KindQueueDrained  = "queue.drained"

	KindNetStatusChanged = "net.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind           string
	Timestamp      time.Time
	ConversationID string
	Payload        any
}
