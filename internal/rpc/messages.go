package rpc

import "encoding/json"

type Empty struct{}

type StatusRequest struct{}

type StatusResponse struct {
	Profile       string              `json:"profile"`
	UserID        string              `json:"user_id"`
	DisplayName   string              `json:"display_name,omitempty"`
	Network       string              `json:"network"`
	NetworkKind   string              `json:"network_kind"`
	UsingFallback bool                `json:"using_fallback"`
	UptimeMs      int64               `json:"uptime_ms"`
	Conversations []ConversationState `json:"conversations"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// ConversationState summarizes one open conversation.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	Online         bool   `json:"online"`
	Subscribed     bool   `json:"subscribed"`
	QueueLen       int    `json:"queue_len"`
	Messages       int    `json:"messages"`
	Pending        int    `json:"pending"`
	Unread         int    `json:"unread"`
	Loaded         bool   `json:"loaded"`
}

type Message struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id"`
	SenderName     string   `json:"sender_name,omitempty"`
	Content        string   `json:"content"`
	Kind           string   `json:"message_type"`
	MediaURL       string   `json:"media_url,omitempty"`
	Status         string   `json:"status"`
	CreatedAtMs    int64    `json:"created_at_ms"`
	ReadAtMs       int64    `json:"read_at_ms,omitempty"`
	ReadCount      int      `json:"read_count"`
	Readers        []string `json:"readers,omitempty"`
	Pending        bool     `json:"pending"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Kind           string `json:"message_type,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
}

// SendResponse carries the message as it stands after the send: the server
// copy, or a placeholder when queued or failed. Skipped is set for blank
// content.
type SendResponse struct {
	Message *Message `json:"message,omitempty"`
	Queued  bool     `json:"queued"`
	Skipped bool     `json:"skipped"`
}

type RetryRequest struct {
	ConversationID string `json:"conversation_id"`
	LocalID        string `json:"local_id"`
}

type SetNetworkRequest struct {
	Online bool `json:"online"`
}

type SetNetworkResponse struct {
	Network       string `json:"network"`
	UsingFallback bool   `json:"using_fallback"`
}

// WatchRequest filters the event stream by kind prefix and conversation.
type WatchRequest struct {
	Prefix         string `json:"prefix,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Profile          string          `json:"profile"`
	Kind             string          `json:"kind"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}
