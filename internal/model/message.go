package model

import (
	"fmt"
	"time"
)

// Status is the delivery lifecycle of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// Kind is the content type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// ParseKind validates a message kind. Empty input defaults to text.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindText, nil
	case KindText, KindImage, KindFile:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown message kind %q", s)
	}
}

// ParseStatus validates a status string coming from the remote store.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return Status(s), nil
	case "":
		return StatusSent, nil
	default:
		return "", fmt.Errorf("unknown message status %q", s)
	}
}

// Message is a chat message as held by a conversation's local store.
// Pending messages carry a temporary id (see NewTempID, NewQueuedID).
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Kind           Kind
	MediaURL       string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ReadAt         *time.Time

	// Denormalized sender profile fields.
	SenderName   string
	SenderAvatar string

	Receipts []ReadReceipt
}

// Pending reports whether the message has not been confirmed by the server yet.
func (m *Message) Pending() bool {
	return IsTempID(m.ID) || IsQueuedID(m.ID)
}

// Clone returns a deep copy so callers can hold snapshots outside the store lock.
func (m Message) Clone() Message {
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	if m.Receipts != nil {
		m.Receipts = append([]ReadReceipt(nil), m.Receipts...)
	}
	return m
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	MessageID  string
	UserID     string
	ReadAt     time.Time
	ReaderName string
}

// QueuedMessage is a send attempted while offline, persisted until connectivity returns.
type QueuedMessage struct {
	LocalID        string    `json:"local_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Kind           Kind      `json:"message_type"`
	MediaURL       string    `json:"media_url,omitempty"`
	QueuedAt       time.Time `json:"timestamp"`
}

// Draft is the user-authored part of a message handed to the remote store.
type Draft struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           Kind
	MediaURL       string
}
