package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/gymchat/internal/client"
	"github.com/matheus3301/gymchat/internal/profile"
	"github.com/spf13/cobra"
)

type globals struct {
	profile string
	json    bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "gymchatctl",
		Short:         "Control a gymchat daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.profile, "profile", "", "profile name (overrides config default)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newStatusCmd(g),
		newOpenCmd(g),
		newCloseCmd(g),
		newMessagesCmd(g),
		newSendCmd(g),
		newRetryCmd(g),
		newReadCmd(g),
		newNetCmd(g),
		newWatchCmd(g),
	)
	return root
}

// connect resolves the profile and dials its daemon.
func (g *globals) connect() (*client.Client, error) {
	name := profile.Resolve(g.profile)
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
	}
	return c, nil
}

// run dials the daemon and calls fn with a request-scoped context.
func (g *globals) run(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := g.connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return fn(ctx, c)
}
