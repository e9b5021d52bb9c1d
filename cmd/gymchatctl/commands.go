package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/gymchat/internal/client"
	"github.com/matheus3301/gymchat/internal/rpc"
	"github.com/spf13/cobra"
)

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, network and open conversation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Chat.Status(ctx, &rpc.StatusRequest{})
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Profile: %s\n", resp.Profile)
				fmt.Fprintf(w, "User:    %s %s\n", resp.UserID, resp.DisplayName)
				network := resp.Network
				if resp.UsingFallback {
					network += " (manual)"
				} else if resp.NetworkKind != "" {
					network += " (" + resp.NetworkKind + ")"
				}
				fmt.Fprintf(w, "Network: %s\n", network)
				fmt.Fprintf(w, "Uptime:  %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
				for _, st := range resp.Conversations {
					printState(w, &st)
				}
				return nil
			})
		},
	}
}

func newOpenCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Open a conversation: load messages, subscribe and mark read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				st, err := c.Chat.OpenConversation(ctx, &rpc.ConversationRequest{ConversationID: args[0]})
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(cmd.OutOrStdout(), st)
				}
				printState(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func newCloseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "close <conversation-id>",
		Short: "Close a conversation and drop its realtime subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				_, err := c.Chat.CloseConversation(ctx, &rpc.ConversationRequest{ConversationID: args[0]})
				return err
			})
		},
	}
}

func newMessagesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "messages <conversation-id>",
		Aliases: []string{"ls"},
		Short:   "List a conversation's messages in order",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Chat.ListMessages(ctx, &rpc.ConversationRequest{ConversationID: args[0]})
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				for i := range resp.Messages {
					printMessage(cmd.OutOrStdout(), &resp.Messages[i])
				}
				return nil
			})
		},
	}
}

func newSendCmd(g *globals) *cobra.Command {
	var kind, mediaURL string
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send a message, queueing it while offline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Chat.SendMessage(ctx, &rpc.SendRequest{
					ConversationID: args[0],
					Content:        strings.Join(args[1:], " "),
					Kind:           kind,
					MediaURL:       mediaURL,
				})
				if err != nil {
					return err
				}
				return printSend(cmd, g, resp)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "text", "message type: text, image or file")
	cmd.Flags().StringVar(&mediaURL, "media-url", "", "attachment URL for image and file messages")
	return cmd
}

func newRetryCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <conversation-id> <local-id>",
		Short: "Retry a failed message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Chat.RetryMessage(ctx, &rpc.RetryRequest{ConversationID: args[0], LocalID: args[1]})
				if err != nil {
					return err
				}
				return printSend(cmd, g, resp)
			})
		},
	}
}

func newReadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Mark an open conversation read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				_, err := c.Chat.MarkRead(ctx, &rpc.ConversationRequest{ConversationID: args[0]})
				return err
			})
		},
	}
}

func newNetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "net <online|offline>",
		Short:     "Report connectivity when the daemon has no probe",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"online", "offline"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var online bool
			switch args[0] {
			case "online":
				online = true
			case "offline":
			default:
				return fmt.Errorf("unknown network state %q (want online or offline)", args[0])
			}
			return g.run(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Chat.SetNetwork(ctx, &rpc.SetNetworkRequest{Online: online})
				if err != nil {
					return err
				}
				if g.json {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Network: %s\n", resp.Network)
				return nil
			})
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	var prefix, conversationID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			recv, err := c.Chat.WatchEvents(cmd.Context(), &rpc.WatchRequest{Prefix: prefix, ConversationID: conversationID})
			if err != nil {
				return err
			}
			for {
				evt, err := recv.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if g.json {
					if err := outputJSON(cmd.OutOrStdout(), evt); err != nil {
						return err
					}
					continue
				}
				printEvent(cmd.OutOrStdout(), evt)
			}
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "event kind prefix, e.g. message. or net.")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "only events for this conversation")
	return cmd
}
