package rpc

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ChatServiceClient calls gymchat.v1.ChatService over a connection.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func (c *ChatServiceClient) Status(ctx context.Context, in *StatusRequest) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, ChatService_Status_FullMethodName, in)
}

func (c *ChatServiceClient) OpenConversation(ctx context.Context, in *ConversationRequest) (*ConversationState, error) {
	return invoke[ConversationState](ctx, c.cc, ChatService_OpenConversation_FullMethodName, in)
}

func (c *ChatServiceClient) CloseConversation(ctx context.Context, in *ConversationRequest) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, ChatService_CloseConversation_FullMethodName, in)
}

func (c *ChatServiceClient) ListMessages(ctx context.Context, in *ConversationRequest) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, ChatService_ListMessages_FullMethodName, in)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *SendRequest) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, ChatService_SendMessage_FullMethodName, in)
}

func (c *ChatServiceClient) RetryMessage(ctx context.Context, in *RetryRequest) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, ChatService_RetryMessage_FullMethodName, in)
}

func (c *ChatServiceClient) MarkRead(ctx context.Context, in *ConversationRequest) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, ChatService_MarkRead_FullMethodName, in)
}

func (c *ChatServiceClient) SetNetwork(ctx context.Context, in *SetNetworkRequest) (*SetNetworkResponse, error) {
	return invoke[SetNetworkResponse](ctx, c.cc, ChatService_SetNetwork_FullMethodName, in)
}

// WatchEvents opens the event stream. Call Recv until it returns io.EOF or an error.
func (c *ChatServiceClient) WatchEvents(ctx context.Context, in *WatchRequest) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[0], ChatService_WatchEvents_FullMethodName)
	if err != nil {
		return nil, err
	}
	req, err := ToStruct(in)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}

// EventReceiver is the client side of WatchEvents.
type EventReceiver struct {
	stream grpc.ClientStream
}

func (r *EventReceiver) Recv() (*EventEnvelope, error) {
	out := new(structpb.Struct)
	if err := r.stream.RecvMsg(out); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	var evt EventEnvelope
	if err := FromStruct(out, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any) (*Resp, error) {
	req, err := ToStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	var resp Resp
	if err := FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
