// Package rpc is the daemon's gRPC surface, declared in
// proto/gymchat/v1/chat.proto. Messages travel as google.protobuf.Struct
// values carrying the JSON form of the types in messages.go; this file
// follows the layout protoc-gen-go-grpc emits for the service.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gymchat.v1.ChatService"

const (
	ChatService_Status_FullMethodName            = "/gymchat.v1.ChatService/Status"
	ChatService_OpenConversation_FullMethodName  = "/gymchat.v1.ChatService/OpenConversation"
	ChatService_CloseConversation_FullMethodName = "/gymchat.v1.ChatService/CloseConversation"
	ChatService_ListMessages_FullMethodName      = "/gymchat.v1.ChatService/ListMessages"
	ChatService_SendMessage_FullMethodName       = "/gymchat.v1.ChatService/SendMessage"
	ChatService_RetryMessage_FullMethodName      = "/gymchat.v1.ChatService/RetryMessage"
	ChatService_MarkRead_FullMethodName          = "/gymchat.v1.ChatService/MarkRead"
	ChatService_SetNetwork_FullMethodName        = "/gymchat.v1.ChatService/SetNetwork"
	ChatService_WatchEvents_FullMethodName       = "/gymchat.v1.ChatService/WatchEvents"
)

// ChatServiceServer is the server API for ChatService.
// All implementations must embed UnimplementedChatServiceServer.
type ChatServiceServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	OpenConversation(context.Context, *ConversationRequest) (*ConversationState, error)
	CloseConversation(context.Context, *ConversationRequest) (*Empty, error)
	ListMessages(context.Context, *ConversationRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendRequest) (*SendResponse, error)
	RetryMessage(context.Context, *RetryRequest) (*SendResponse, error)
	MarkRead(context.Context, *ConversationRequest) (*Empty, error)
	SetNetwork(context.Context, *SetNetworkRequest) (*SetNetworkResponse, error)
	WatchEvents(*WatchRequest, ChatService_WatchEventsServer) error
	mustEmbedUnimplementedChatServiceServer()
}

// UnimplementedChatServiceServer answers every method with codes.Unimplemented.
type UnimplementedChatServiceServer struct{}

func (UnimplementedChatServiceServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedChatServiceServer) OpenConversation(context.Context, *ConversationRequest) (*ConversationState, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenConversation not implemented")
}
func (UnimplementedChatServiceServer) CloseConversation(context.Context, *ConversationRequest) (*Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method CloseConversation not implemented")
}
func (UnimplementedChatServiceServer) ListMessages(context.Context, *ConversationRequest) (*ListMessagesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListMessages not implemented")
}
func (UnimplementedChatServiceServer) SendMessage(context.Context, *SendRequest) (*SendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SendMessage not implemented")
}
func (UnimplementedChatServiceServer) RetryMessage(context.Context, *RetryRequest) (*SendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RetryMessage not implemented")
}
func (UnimplementedChatServiceServer) MarkRead(context.Context, *ConversationRequest) (*Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkRead not implemented")
}
func (UnimplementedChatServiceServer) SetNetwork(context.Context, *SetNetworkRequest) (*SetNetworkResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SetNetwork not implemented")
}
func (UnimplementedChatServiceServer) WatchEvents(*WatchRequest, ChatService_WatchEventsServer) error {
	return status.Error(codes.Unimplemented, "method WatchEvents not implemented")
}
func (UnimplementedChatServiceServer) mustEmbedUnimplementedChatServiceServer() {}

// ChatService_WatchEventsServer is the server side of WatchEvents.
type ChatService_WatchEventsServer = grpc.ServerStreamingServer[EventEnvelope]

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

// ChatService_ServiceDesc is the grpc.ServiceDesc for ChatService.
var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary(ChatService_Status_FullMethodName, ChatServiceServer.Status)},
		{MethodName: "OpenConversation", Handler: unary(ChatService_OpenConversation_FullMethodName, ChatServiceServer.OpenConversation)},
		{MethodName: "CloseConversation", Handler: unary(ChatService_CloseConversation_FullMethodName, ChatServiceServer.CloseConversation)},
		{MethodName: "ListMessages", Handler: unary(ChatService_ListMessages_FullMethodName, ChatServiceServer.ListMessages)},
		{MethodName: "SendMessage", Handler: unary(ChatService_SendMessage_FullMethodName, ChatServiceServer.SendMessage)},
		{MethodName: "RetryMessage", Handler: unary(ChatService_RetryMessage_FullMethodName, ChatServiceServer.RetryMessage)},
		{MethodName: "MarkRead", Handler: unary(ChatService_MarkRead_FullMethodName, ChatServiceServer.MarkRead)},
		{MethodName: "SetNetwork", Handler: unary(ChatService_SetNetwork_FullMethodName, ChatServiceServer.SetNetwork)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: _ChatService_WatchEvents_Handler, ServerStreams: true},
	},
	Metadata: "gymchat/v1/chat.proto",
}

// unary builds a method handler that decodes the Struct request into Req
// and encodes the typed response back into a Struct.
func unary[Req, Resp any](fullMethod string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			var typed Req
			if err := FromStruct(req.(*structpb.Struct), &typed); err != nil {
				return nil, err
			}
			resp, err := call(srv.(ChatServiceServer), ctx, &typed)
			if err != nil {
				return nil, err
			}
			return ToStruct(resp)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

func _ChatService_WatchEvents_Handler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	var req WatchRequest
	if err := FromStruct(in, &req); err != nil {
		return err
	}
	return srv.(ChatServiceServer).WatchEvents(&req, &watchEventsServer{stream})
}

type watchEventsServer struct {
	grpc.ServerStream
}

func (s *watchEventsServer) Send(evt *EventEnvelope) error {
	out, err := ToStruct(evt)
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(out)
}
