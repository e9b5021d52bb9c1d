package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	tempPrefix   = "temp_"
	queuedPrefix = "queued_"
)

// NewTempID returns a placeholder id for an online send: temp_<ms>_<rand>.
func NewTempID(now time.Time) string {
	return newLocalID(tempPrefix, now)
}

// NewQueuedID returns a placeholder id for an offline send: queued_<ms>_<rand>.
func NewQueuedID(now time.Time) string {
	return newLocalID(queuedPrefix, now)
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// IsQueuedID reports whether id was produced by NewQueuedID.
func IsQueuedID(id string) bool {
	return strings.HasPrefix(id, queuedPrefix)
}

func newLocalID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%d_%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}
