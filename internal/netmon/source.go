package netmon

import (
	"context"
	"errors"
)

// Connection type hints.
const (
	KindNone     = "none"
	KindUnknown  = "unknown"
	KindWifi     = "wifi"
	KindEthernet = "ethernet"
	KindCellular = "cellular"
)

// ErrUnavailable is returned by a Source that cannot observe connectivity on this host.
var ErrUnavailable = errors.New("connectivity source unavailable")

// Status is a point-in-time connectivity reading.
type Status struct {
	Connected bool
	Kind      string
}

// Source observes connectivity. Watch emits a Status on every change and
// closes the channel when ctx is done.
type Source interface {
	Status(ctx context.Context) (Status, error)
	Watch(ctx context.Context) (<-chan Status, error)
}
