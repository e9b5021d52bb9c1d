// Package realtime models server-pushed row changes as typed subscriptions,
// independent of the transport that delivers them.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	// All matches every event type in a Filter.
	All EventType = "*"
)

// ErrClosed is reported by a subscription that was closed by its owner.
var ErrClosed = errors.New("subscription closed")

// Filter selects row changes of one table. An empty Column subscribes to the
// whole table; the caller is then responsible for matching rows itself.
type Filter struct {
	Schema string
	Table  string
	Event  EventType
	Column string
	Value  string
}

// Expr renders the PostgREST-style filter expression, e.g. conversation_id=eq.42.
func (f Filter) Expr() string {
	if f.Column == "" {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

func (f Filter) schema() string {
	if f.Schema == "" {
		return "public"
	}
	return f.Schema
}

func (f Filter) event() EventType {
	if f.Event == "" {
		return All
	}
	return f.Event
}

// Change is one row change. New and Old hold the raw row JSON; decoding into
// domain types happens at the consumer.
type Change struct {
	Table     string
	Type      EventType
	New       json.RawMessage
	Old       json.RawMessage
	Committed time.Time
}

// Subscription is a live stream of changes. Changes is closed when the
// subscription ends; Err then reports why (ErrClosed after Close).
type Subscription interface {
	Changes() <-chan Change
	Err() error
	Close() error
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, name string, filters []Filter) (Subscription, error)
}
