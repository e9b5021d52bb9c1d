package api

import (
	"context"
	"errors"

	"github.com/matheus3301/gymchat/internal/chat"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/remote"
	"github.com/matheus3301/gymchat/internal/rpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func messageToRPC(m *model.Message) *rpc.Message {
	out := &rpc.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		Kind:           string(m.Kind),
		MediaURL:       m.MediaURL,
		Status:         string(m.Status),
		CreatedAtMs:    m.CreatedAt.UnixMilli(),
		ReadCount:      model.ReadCount(m),
		Readers:        model.ReaderNames(m),
		Pending:        m.Pending(),
	}
	if m.ReadAt != nil {
		out.ReadAtMs = m.ReadAt.UnixMilli()
	}
	return out
}

func stateToRPC(st chat.State, unread int) rpc.ConversationState {
	return rpc.ConversationState{
		ConversationID: st.ConversationID,
		Online:         st.Online,
		Subscribed:     st.Subscribed,
		QueueLen:       st.QueueLen,
		Messages:       st.Messages,
		Pending:        st.Pending,
		Unread:         unread,
		Loaded:         st.Loaded,
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	code := codes.Internal
	var loadErr *chat.LoadError
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, chat.ErrNotOpen), errors.Is(err, chat.ErrUnknownMessage), errors.Is(err, remote.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, chat.ErrNotRetryable):
		code = codes.FailedPrecondition
	case errors.Is(err, remote.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, chat.ErrStopped), errors.As(err, &loadErr):
		code = codes.Unavailable
	}
	return grpcstatus.Error(code, err.Error())
}
