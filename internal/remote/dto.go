package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/gymchat/internal/model"
)

// Timestamp accepts the timestamp spellings Postgres emits over REST and realtime.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ProfileRow is the embedded profile PostgREST returns for sender and reader joins.
type ProfileRow struct {
	ID        string `json:"id,omitempty"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// MessageRow is a row of the messages table, optionally with joined sender and receipts.
type MessageRow struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Content        string       `json:"content"`
	MessageType    string       `json:"message_type"`
	MediaURL       *string      `json:"media_url"`
	Status         string       `json:"status"`
	CreatedAt      Timestamp    `json:"created_at"`
	UpdatedAt      Timestamp    `json:"updated_at"`
	ReadAt         *Timestamp   `json:"read_at"`
	Sender         *ProfileRow  `json:"sender,omitempty"`
	ReadReceipts   []ReceiptRow `json:"read_receipts,omitempty"`
}

// ReceiptRow is a row of the read_receipts table.
type ReceiptRow struct {
	ID        string      `json:"id,omitempty"`
	MessageID string      `json:"message_id"`
	UserID    string      `json:"user_id"`
	ReadAt    Timestamp   `json:"read_at"`
	User      *ProfileRow `json:"user,omitempty"`
}

// ToMessage validates the row and converts it to the domain type.
func (r MessageRow) ToMessage() (model.Message, error) {
	if r.ID == "" {
		return model.Message{}, errors.New("message row without id")
	}
	if r.ConversationID == "" {
		return model.Message{}, fmt.Errorf("message %s without conversation_id", r.ID)
	}
	kind, err := model.ParseKind(r.MessageType)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s: %w", r.ID, err)
	}
	st, err := model.ParseStatus(r.Status)
	if err != nil {
		return model.Message{}, fmt.Errorf("message %s: %w", r.ID, err)
	}

	m := model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Content:        r.Content,
		Kind:           kind,
		Status:         st,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
	if r.MediaURL != nil {
		m.MediaURL = *r.MediaURL
	}
	if r.ReadAt != nil && !r.ReadAt.IsZero() {
		t := r.ReadAt.Time
		m.ReadAt = &t
	}
	if r.Sender != nil {
		m.SenderName = r.Sender.FullName
		m.SenderAvatar = r.Sender.AvatarURL
	}
	for _, rr := range r.ReadReceipts {
		rec, err := rr.ToReceipt()
		if err != nil {
			return model.Message{}, err
		}
		if !m.HasReceiptFrom(rec.UserID) {
			m.Receipts = append(m.Receipts, rec)
		}
	}
	return m, nil
}

// ToReceipt validates the row and converts it to the domain type.
func (r ReceiptRow) ToReceipt() (model.ReadReceipt, error) {
	if r.MessageID == "" || r.UserID == "" {
		return model.ReadReceipt{}, errors.New("read receipt row without message_id or user_id")
	}
	rec := model.ReadReceipt{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		ReadAt:    r.ReadAt.Time,
	}
	if r.User != nil {
		rec.ReaderName = r.User.FullName
	}
	return rec, nil
}

// DecodeMessage parses a raw messages row.
func DecodeMessage(raw []byte) (model.Message, error) {
	var row MessageRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.Message{}, fmt.Errorf("decode message row: %w", err)
	}
	return row.ToMessage()
}

// DecodeReceipt parses a raw read_receipts row.
func DecodeReceipt(raw []byte) (model.ReadReceipt, error) {
	var row ReceiptRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.ReadReceipt{}, fmt.Errorf("decode read receipt row: %w", err)
	}
	return row.ToReceipt()
}

type insertMessageRow struct {
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	MessageType    model.Kind `json:"message_type"`
	MediaURL       *string    `json:"media_url"`
	Status         string     `json:"status"`
}

