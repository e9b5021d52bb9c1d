package client

import (
	"fmt"

	"github.com/matheus3301/gymchat/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client wraps the gRPC connection to a profile's daemon.
type Client struct {
	conn *grpc.ClientConn
	Chat *rpc.ChatServiceClient
}

// New dials the daemon's Unix domain socket. The connection is lazy: a
// missing daemon surfaces as codes.Unavailable on the first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn: conn,
		Chat: rpc.NewChatServiceClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
