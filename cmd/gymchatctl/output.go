package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/matheus3301/gymchat/internal/rpc"
	"github.com/spf13/cobra"
)

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printState(w io.Writer, st *rpc.ConversationState) {
	sub := "live"
	if !st.Subscribed {
		sub = "not subscribed"
	}
	if !st.Loaded {
		sub += ", not loaded"
	}
	fmt.Fprintf(w, "%s  %d messages, %d pending, %d queued, %d unread (%s)\n",
		st.ConversationID, st.Messages, st.Pending, st.QueueLen, st.Unread, sub)
}

func printMessage(w io.Writer, m *rpc.Message) {
	sender := m.SenderName
	if sender == "" {
		sender = m.SenderID
	}
	at := time.UnixMilli(m.CreatedAtMs).Local().Format("2006-01-02 15:04")
	body := m.Content
	if m.MediaURL != "" {
		body += " <" + m.MediaURL + ">"
	}
	status := m.Status
	if m.ReadCount > 0 {
		status += " by " + strings.Join(m.Readers, ", ")
	}
	fmt.Fprintf(w, "%s  %-16s %s  [%s] %s\n", at, sender, body, status, m.ID)
}

func printSend(cmd *cobra.Command, g *globals, resp *rpc.SendResponse) error {
	if g.json {
		return outputJSON(cmd.OutOrStdout(), resp)
	}
	w := cmd.OutOrStdout()
	switch {
	case resp.Skipped:
		fmt.Fprintln(w, "Nothing to send.")
	case resp.Queued:
		fmt.Fprintf(w, "Offline: queued as %s\n", resp.Message.ID)
	default:
		fmt.Fprintf(w, "Sent: %s (%s)\n", resp.Message.ID, resp.Message.Status)
	}
	return nil
}

func printEvent(w io.Writer, evt *rpc.EventEnvelope) {
	at := time.UnixMilli(evt.OccurredAtUnixMs).Local().Format("15:04:05.000")
	conv := evt.ConversationID
	if conv == "" {
		conv = "-"
	}
	fmt.Fprintf(w, "%s  %-24s %s  %s\n", at, evt.Kind, conv, string(evt.Payload))
}
