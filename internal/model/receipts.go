package model

import "time"

// HasReceiptFrom reports whether userID already has a receipt on m.
func (m *Message) HasReceiptFrom(userID string) bool {
	for _, r := range m.Receipts {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ReadCount is the number of distinct users with a receipt on m.
func ReadCount(m *Message) int {
	seen := make(map[string]struct{}, len(m.Receipts))
	for _, r := range m.Receipts {
		seen[r.UserID] = struct{}{}
	}
	return len(seen)
}

// ReaderNames lists the display names of m's readers in receipt order.
// Readers without a display name are listed by user id.
func ReaderNames(m *Message) []string {
	seen := make(map[string]struct{}, len(m.Receipts))
	names := make([]string, 0, len(m.Receipts))
	for _, r := range m.Receipts {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		name := r.ReaderName
		if name == "" {
			name = r.UserID
		}
		names = append(names, name)
	}
	return names
}

// UnreadCount counts confirmed messages from other senders created after
// the viewer's last-read watermark. A zero watermark counts everything.
func UnreadCount(msgs []Message, viewerID string, watermark time.Time) int {
	n := 0
	for i := range msgs {
		m := &msgs[i]
		if m.SenderID == viewerID || m.Pending() {
			continue
		}
		if watermark.IsZero() || m.CreatedAt.After(watermark) {
			n++
		}
	}
	return n
}
