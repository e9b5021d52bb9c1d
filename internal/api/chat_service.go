package api

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/chat"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/netmon"
	"github.com/matheus3301/gymchat/internal/rpc"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService implements gymchat.v1.ChatService on top of the conversation manager.
type ChatService struct {
	rpc.UnimplementedChatServiceServer

	profile   string
	startedAt time.Time
	manager   *chat.Manager
	monitor   *netmon.Monitor
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ rpc.ChatServiceServer = (*ChatService)(nil)

// NewChatService creates the service. monitor may be nil in tests; the
// network then reports UNKNOWN and SetNetwork is unavailable.
func NewChatService(profile string, manager *chat.Manager, monitor *netmon.Monitor, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		profile:   profile,
		startedAt: time.Now(),
		manager:   manager,
		monitor:   monitor,
		bus:       b,
		logger:    logger,
	}
}

func (s *ChatService) Status(ctx context.Context, _ *rpc.StatusRequest) (*rpc.StatusResponse, error) {
	resp := &rpc.StatusResponse{
		Profile:  s.profile,
		Network:  string(netmon.Unknown),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	if v := s.manager.Viewer(); v != nil {
		resp.UserID = v.UserID
		resp.DisplayName = v.DisplayName
	}
	if s.monitor != nil {
		resp.Network = string(s.monitor.State())
		resp.NetworkKind = s.monitor.Kind()
		resp.UsingFallback = s.monitor.UsingFallback()
	}
	resp.Conversations = []rpc.ConversationState{}
	for _, id := range s.manager.List() {
		c, ok := s.manager.Get(id)
		if !ok {
			continue
		}
		resp.Conversations = append(resp.Conversations, s.state(ctx, c))
	}
	return resp, nil
}

func (s *ChatService) OpenConversation(ctx context.Context, req *rpc.ConversationRequest) (*rpc.ConversationState, error) {
	c, err := s.open(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	st := s.state(ctx, c)
	return &st, nil
}

func (s *ChatService) CloseConversation(_ context.Context, req *rpc.ConversationRequest) (*rpc.Empty, error) {
	if err := s.manager.Close(req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *ChatService) ListMessages(ctx context.Context, req *rpc.ConversationRequest) (*rpc.ListMessagesResponse, error) {
	c, err := s.open(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	msgs := c.Messages()
	out := make([]rpc.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, *messageToRPC(&msgs[i]))
	}
	return &rpc.ListMessagesResponse{Messages: out}, nil
}

func (s *ChatService) SendMessage(ctx context.Context, req *rpc.SendRequest) (*rpc.SendResponse, error) {
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	c, err := s.open(ctx, req.ConversationID)
	if c == nil {
		return nil, err
	}
	if err != nil {
		// Messages could not be fetched; the send still goes out or is queued.
		s.logger.Warn("sending into unloaded conversation", zap.String("conversation_id", c.ID()), zap.Error(err))
	}
	msg, err := c.Send(ctx, req.Content, kind, req.MediaURL)
	if err != nil {
		return nil, toStatus(err)
	}
	return sendResponse(c, msg), nil
}

func (s *ChatService) RetryMessage(ctx context.Context, req *rpc.RetryRequest) (*rpc.SendResponse, error) {
	c, ok := s.manager.Get(req.ConversationID)
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "conversation %q not open", req.ConversationID)
	}
	msg, err := c.Retry(ctx, req.LocalID)
	if err != nil {
		return nil, toStatus(err)
	}
	return sendResponse(c, msg), nil
}

func (s *ChatService) MarkRead(ctx context.Context, req *rpc.ConversationRequest) (*rpc.Empty, error) {
	c, ok := s.manager.Get(req.ConversationID)
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "conversation %q not open", req.ConversationID)
	}
	c.MarkRead(ctx)
	return &rpc.Empty{}, nil
}

// SetNetwork feeds an online/offline notification to the event-driven
// source. The monitor applies it asynchronously.
func (s *ChatService) SetNetwork(_ context.Context, req *rpc.SetNetworkRequest) (*rpc.SetNetworkResponse, error) {
	if s.monitor == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "network monitor not running")
	}
	if !s.monitor.UsingFallback() {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "network is probed; clear network.probe_url to set it manually")
	}
	if req.Online {
		s.monitor.Fallback().SetOnline()
	} else {
		s.monitor.Fallback().SetOffline()
	}
	s.logger.Info("network set manually", zap.Bool("online", req.Online))
	return &rpc.SetNetworkResponse{
		Network:       string(s.monitor.State()),
		UsingFallback: true,
	}, nil
}

// open returns the conversation even when its messages failed to load; the
// error is then Unavailable and the conversation stays open.
func (s *ChatService) open(ctx context.Context, id string) (*chat.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	c, err := s.manager.Open(ctx, id)
	return c, toStatus(err)
}

func (s *ChatService) state(ctx context.Context, c *chat.Conversation) rpc.ConversationState {
	unread, err := c.UnreadCount(ctx)
	if err != nil {
		s.logger.Warn("unread count unavailable", zap.String("conversation_id", c.ID()), zap.Error(err))
	}
	return stateToRPC(c.State(), unread)
}

func sendResponse(c *chat.Conversation, msg *model.Message) *rpc.SendResponse {
	if msg == nil {
		return &rpc.SendResponse{Skipped: true}
	}
	return &rpc.SendResponse{
		Message: messageToRPC(msg),
		Queued:  c.Queued(msg.ID),
	}
}
