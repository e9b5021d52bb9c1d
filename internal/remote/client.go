// Package remote is the PostgREST client for the messages, read receipts and
// participants tables of the gym Supabase project.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/gymchat/internal/model"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	messageSelect = "*,sender:profiles!messages_sender_id_fkey(full_name,avatar_url),read_receipts(message_id,user_id,read_at,user:profiles(full_name))"
	restPrefix    = "/rest/v1"
)

// Options configures a Client.
type Options struct {
	URL         string
	AnonKey     string
	AccessToken string
	Timeout     time.Duration
	// MaxFailures consecutive server failures open the breaker for BreakerTimeout.
	MaxFailures    uint32
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
}

// Client talks to PostgREST. All calls go through a circuit breaker.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	token   string
}

// New creates a Client.
func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "postgrest",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		anonKey: opts.AnonKey,
		http:    hc,
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
		token:   opts.AccessToken,
	}
}

// InsertMessage inserts a message with status sent and returns the stored row,
// including its server-assigned id and timestamps.
func (c *Client) InsertMessage(ctx context.Context, d model.Draft) (model.Message, error) {
	row := insertMessageRow{
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		MessageType:    d.Kind,
		Status:         string(model.StatusSent),
	}
	if row.MessageType == "" {
		row.MessageType = model.KindText
	}
	if d.MediaURL != "" {
		row.MediaURL = &d.MediaURL
	}

	q := url.Values{"select": {messageSelect}}
	data, err := c.do(ctx, http.MethodPost, "/messages", q, row, "return=representation")
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	msgs, err := decodeMessages(data)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if len(msgs) == 0 {
		return model.Message{}, errors.New("insert message: empty representation")
	}
	return msgs[0], nil
}

// ListMessages returns a conversation's messages ordered by creation time ascending.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	q := url.Values{
		"conversation_id": {"eq." + conversationID},
		"order":           {"created_at.asc"},
		"select":          {messageSelect},
	}
	data, err := c.do(ctx, http.MethodGet, "/messages", q, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := decodeMessages(data)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// MarkMessagesRead calls the bulk receipt RPC, creating receipts for every
// unread message in the conversation sent by someone other than userID.
func (c *Client) MarkMessagesRead(ctx context.Context, conversationID, userID string) error {
	body := map[string]string{
		"p_conversation_id": conversationID,
		"p_user_id":         userID,
	}
	if _, err := c.do(ctx, http.MethodPost, "/rpc/mark_messages_read", nil, body, ""); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// UpdateLastRead moves the participant's last-read watermark.
func (c *Client) UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	q := url.Values{
		"conversation_id": {"eq." + conversationID},
		"user_id":         {"eq." + userID},
	}
	body := map[string]Timestamp{"last_read_at": {at}}
	if _, err := c.do(ctx, http.MethodPatch, "/conversation_participants", q, body, "return=minimal"); err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}

// Profile fetches the display fields of a user.
func (c *Client) Profile(ctx context.Context, userID string) (ProfileRow, error) {
	q := url.Values{
		"id":     {"eq." + userID},
		"select": {"id,full_name,avatar_url"},
	}
	data, err := c.do(ctx, http.MethodGet, "/profiles", q, nil, "")
	if err != nil {
		return ProfileRow{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	var rows []ProfileRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return ProfileRow{}, fmt.Errorf("decode profile: %w", err)
	}
	if len(rows) == 0 {
		return ProfileRow{}, fmt.Errorf("get profile %s: %w", userID, ErrNotFound)
	}
	return rows[0], nil
}

func decodeMessages(data []byte) ([]model.Message, error) {
	var rows []MessageRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.ToMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string) ([]byte, error) {
	out, err := c.cb.Execute(func() (any, error) {
		return c.roundTrip(ctx, method, path, query, body, prefer)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnavailable)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any, prefer string) ([]byte, error) {
	u := c.baseURL + restPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	token := c.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		c.logger.Debug("postgrest error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return nil, apiErr
	}
	return data, nil
}
