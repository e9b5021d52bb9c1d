package model

import (
	"strings"
	"testing"
	"time"
)

func TestLocalIDs(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	temp := NewTempID(now)
	if !strings.HasPrefix(temp, "temp_1700000000123_") {
		t.Errorf("NewTempID = %q, want prefix temp_1700000000123_", temp)
	}
	if !IsTempID(temp) || IsQueuedID(temp) {
		t.Errorf("IsTempID/IsQueuedID mismatch for %q", temp)
	}

	queued := NewQueuedID(now)
	if !strings.HasPrefix(queued, "queued_1700000000123_") {
		t.Errorf("NewQueuedID = %q, want prefix queued_1700000000123_", queued)
	}
	if !IsQueuedID(queued) || IsTempID(queued) {
		t.Errorf("IsTempID/IsQueuedID mismatch for %q", queued)
	}

	if NewTempID(now) == temp {
		t.Error("two temp ids for the same instant should differ")
	}
}

func TestPending(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"temp_1_abc", true},
		{"queued_1_abc", true},
		{"6f1c2a9e-0000-4000-8000-000000000000", false},
		{"", false},
	}
	for _, tt := range tests {
		m := Message{ID: tt.id}
		if got := m.Pending(); got != tt.want {
			t.Errorf("Pending(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindText, false},
		{"text", KindText, false},
		{"image", KindImage, false},
		{"file", KindFile, false},
		{"video", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadCountAndReaderNames(t *testing.T) {
	m := &Message{
		ID: "m1",
		Receipts: []ReadReceipt{
			{MessageID: "m1", UserID: "u2", ReaderName: "Bea"},
			{MessageID: "m1", UserID: "u3"},
			{MessageID: "m1", UserID: "u2", ReaderName: "Bea"},
		},
	}
	if got := ReadCount(m); got != 2 {
		t.Errorf("ReadCount = %d, want 2", got)
	}
	names := ReaderNames(m)
	if len(names) != 2 || names[0] != "Bea" || names[1] != "u3" {
		t.Errorf("ReaderNames = %v, want [Bea u3]", names)
	}
	if !m.HasReceiptFrom("u3") || m.HasReceiptFrom("u9") {
		t.Error("HasReceiptFrom mismatch")
	}
}

func TestUnreadCount(t *testing.T) {
	base := time.Unix(1000, 0)
	msgs := []Message{
		{ID: "a", SenderID: "coach", CreatedAt: base},
		{ID: "b", SenderID: "me", CreatedAt: base.Add(time.Second)},
		{ID: "c", SenderID: "coach", CreatedAt: base.Add(2 * time.Second)},
		{ID: "temp_1_x", SenderID: "coach", CreatedAt: base.Add(3 * time.Second)},
	}
	if got := UnreadCount(msgs, "me", time.Time{}); got != 2 {
		t.Errorf("UnreadCount(no watermark) = %d, want 2", got)
	}
	if got := UnreadCount(msgs, "me", base); got != 1 {
		t.Errorf("UnreadCount(watermark=base) = %d, want 1", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	readAt := time.Unix(5, 0)
	m := Message{ID: "m", ReadAt: &readAt, Receipts: []ReadReceipt{{UserID: "u"}}}
	c := m.Clone()
	c.Receipts[0].UserID = "other"
	*c.ReadAt = time.Unix(9, 0)
	if m.Receipts[0].UserID != "u" {
		t.Error("Clone shares receipts slice")
	}
	if !m.ReadAt.Equal(time.Unix(5, 0)) {
		t.Error("Clone shares ReadAt pointer")
	}
}
