package api

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/chat"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/netmon"
	"github.com/matheus3301/gymchat/internal/queue"
	"github.com/matheus3301/gymchat/internal/rpc"
	"go.uber.org/zap"
)

// WatchEvents streams bus events matching the request's kind prefix and,
// when set, conversation. Slow watchers lose events rather than stall the bus.
func (s *ChatService) WatchEvents(req *rpc.WatchRequest, stream rpc.ChatService_WatchEventsServer) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if req.ConversationID != "" && evt.ConversationID != req.ConversationID {
				continue
			}
			env, err := s.envelope(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(env); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) envelope(evt bus.Event) (*rpc.EventEnvelope, error) {
	env := &rpc.EventEnvelope{
		EventID:          uuid.New().String(),
		Profile:          s.profile,
		Kind:             evt.Kind,
		ConversationID:   evt.ConversationID,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload == nil {
		return env, nil
	}
	payload, err := json.Marshal(payloadToRPC(evt.Payload))
	if err != nil {
		return nil, err
	}
	env.Payload = payload
	return env, nil
}

type replacedPayload struct {
	LocalID string       `json:"local_id"`
	Message *rpc.Message `json:"message"`
}

type sendFailedPayload struct {
	LocalID string `json:"local_id"`
	Error   string `json:"error"`
}

type receiptPayload struct {
	MessageID  string `json:"message_id"`
	UserID     string `json:"user_id"`
	ReaderName string `json:"reader_name,omitempty"`
	ReadAtMs   int64  `json:"read_at_ms"`
	Status     string `json:"status"`
}

type drainedPayload struct {
	Sent     int      `json:"sent"`
	Failed   []string `json:"failed,omitempty"`
	Requeued int      `json:"requeued"`
}

type netPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

func payloadToRPC(p any) any {
	switch v := p.(type) {
	case model.Message:
		return messageToRPC(&v)
	case chat.Replaced:
		return replacedPayload{LocalID: v.LocalID, Message: messageToRPC(&v.Message)}
	case chat.SendFailed:
		return sendFailedPayload{LocalID: v.LocalID, Error: v.Error}
	case chat.ReceiptAdded:
		return receiptPayload{
			MessageID:  v.Receipt.MessageID,
			UserID:     v.Receipt.UserID,
			ReaderName: v.Receipt.ReaderName,
			ReadAtMs:   v.Receipt.ReadAt.UnixMilli(),
			Status:     string(v.Status),
		}
	case queue.DrainResult:
		out := drainedPayload{Sent: v.Sent, Requeued: v.Requeued}
		for _, f := range v.Failed {
			out.Failed = append(out.Failed, f.Error())
		}
		return out
	case netmon.StatusChange:
		return netPayload{From: string(v.From), To: string(v.To), Kind: v.Kind}
	default:
		return p
	}
}
