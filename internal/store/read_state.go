package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ReadState is the locally recorded last-read watermark of a conversation.
type ReadState struct {
	ConversationID string
	LastReadAt     time.Time
	Synced         bool
}

// SaveReadState records the watermark; synced tells whether the remote update succeeded.
func (db *DB) SaveReadState(ctx context.Context, conversationID string, lastReadAt time.Time, synced bool) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO read_state (conversation_id, last_read_at, synced, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_read_at = MAX(read_state.last_read_at, excluded.last_read_at),
			synced = excluded.synced,
			updated_at = excluded.updated_at`,
		conversationID, lastReadAt.UnixMilli(), synced, now)
	return err
}

// GetReadState returns the watermark for a conversation, or nil if none was recorded.
func (db *DB) GetReadState(ctx context.Context, conversationID string) (*ReadState, error) {
	var (
		rs     ReadState
		lastMs int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT conversation_id, last_read_at, synced FROM read_state WHERE conversation_id = ?`,
		conversationID).Scan(&rs.ConversationID, &lastMs, &rs.Synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rs.LastReadAt = time.UnixMilli(lastMs)
	return &rs, nil
}
