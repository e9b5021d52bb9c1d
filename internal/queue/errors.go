package queue

import "fmt"

// DrainError reports a queued item that could not be delivered during a drain.
type DrainError struct {
	ConversationID string
	LocalID        string
	Err            error
}

func (e *DrainError) Error() string {
	return fmt.Sprintf("drain %s in conversation %s: %v", e.LocalID, e.ConversationID, e.Err)
}

func (e *DrainError) Unwrap() error {
	return e.Err
}
