package chat

import (
	"slices"
	"sort"
	"time"

	"github.com/matheus3301/gymchat/internal/model"
)

// messageList is the Local Message Store: messages sorted by CreatedAt
// ascending with unique ids. It is not safe for concurrent use; Conversation
// guards it with its mutex.
type messageList struct {
	msgs []model.Message
}

func (l *messageList) index(id string) int {
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *messageList) get(id string) (*model.Message, bool) {
	i := l.index(id)
	if i < 0 {
		return nil, false
	}
	return &l.msgs[i], true
}

// insertSorted places m after every message created at or before it, so
// messages sharing a timestamp keep submission order.
func (l *messageList) insertSorted(m model.Message) {
	i := sort.Search(len(l.msgs), func(i int) bool {
		return l.msgs[i].CreatedAt.After(m.CreatedAt)
	})
	l.msgs = slices.Insert(l.msgs, i, m)
}

// append adds m unless its id is already present. Reports whether it was added.
func (l *messageList) append(m model.Message) bool {
	if l.index(m.ID) >= 0 {
		return false
	}
	l.insertSorted(m)
	return true
}

func (l *messageList) remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.msgs = slices.Delete(l.msgs, i, i+1)
	return true
}

// replaceByID swaps the entry with id for m in place, moving it only if its
// new timestamp breaks the ordering. If m's id is already present elsewhere
// the entry with id is dropped instead. Reports whether id was found.
func (l *messageList) replaceByID(id string, m model.Message) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	if id != m.ID && l.index(m.ID) >= 0 {
		l.msgs = slices.Delete(l.msgs, i, i+1)
		return true
	}
	l.msgs[i] = m
	if (i > 0 && l.msgs[i-1].CreatedAt.After(m.CreatedAt)) ||
		(i < len(l.msgs)-1 && m.CreatedAt.After(l.msgs[i+1].CreatedAt)) {
		l.msgs = slices.Delete(l.msgs, i, i+1)
		l.insertSorted(m)
	}
	return true
}

var statusRank = map[model.Status]int{
	model.StatusFailed:    0,
	model.StatusSending:   1,
	model.StatusSent:      2,
	model.StatusDelivered: 3,
	model.StatusRead:      4,
}

// patchStatusByID applies a server status update. Status never moves
// backwards; readAt is only set when the message has none. Reports whether
// the message exists and anything changed.
func (l *messageList) patchStatusByID(id string, status model.Status, readAt *time.Time, updatedAt time.Time) bool {
	m, ok := l.get(id)
	if !ok {
		return false
	}
	changed := false
	if status != "" && status != m.Status && statusRank[status] >= statusRank[m.Status] {
		m.Status = status
		changed = true
	}
	if readAt != nil && m.ReadAt == nil {
		t := *readAt
		m.ReadAt = &t
		changed = true
	}
	if !updatedAt.IsZero() && updatedAt.After(m.UpdatedAt) {
		m.UpdatedAt = updatedAt
		changed = true
	}
	return changed
}

// reset replaces the confirmed messages with loaded, keeping local placeholders.
func (l *messageList) reset(loaded []model.Message) {
	var pending []model.Message
	for _, m := range l.msgs {
		if m.Pending() {
			pending = append(pending, m)
		}
	}
	l.msgs = l.msgs[:0]
	sorted := slices.Clone(loaded)
	slices.SortStableFunc(sorted, func(a, b model.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for _, m := range sorted {
		if l.index(m.ID) < 0 {
			l.msgs = append(l.msgs, m)
		}
	}
	for _, p := range pending {
		l.append(p)
	}
}

// matchPending finds the oldest in-flight placeholder that m is the server copy of.
func (l *messageList) matchPending(m model.Message) (string, bool) {
	for _, p := range l.msgs {
		if !p.Pending() || p.Status != model.StatusSending {
			continue
		}
		if p.SenderID == m.SenderID && p.Content == m.Content && p.Kind == m.Kind && p.MediaURL == m.MediaURL {
			return p.ID, true
		}
	}
	return "", false
}

func (l *messageList) snapshot() []model.Message {
	out := make([]model.Message, len(l.msgs))
	for i := range l.msgs {
		out[i] = l.msgs[i].Clone()
	}
	return out
}
