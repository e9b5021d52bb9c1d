package chat

import (
	"context"
	"time"

	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/remote"
	"github.com/matheus3301/gymchat/internal/store"
)

// Remote is the server-side message store and receipt RPC.
type Remote interface {
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, d model.Draft) (model.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, userID string) error
	UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
	Profile(ctx context.Context, userID string) (remote.ProfileRow, error)
}

// Connectivity reports whether the network is usable right now.
type Connectivity interface {
	Online() bool
}

// ReadStates persists last-read watermarks locally.
type ReadStates interface {
	SaveReadState(ctx context.Context, conversationID string, lastReadAt time.Time, synced bool) error
	GetReadState(ctx context.Context, conversationID string) (*store.ReadState, error)
}

// staticConnectivity is a fixed connectivity flag.
type staticConnectivity bool

func (s staticConnectivity) Online() bool { return bool(s) }
