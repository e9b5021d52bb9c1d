package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	protocolVersion = "1.0.0"
	joinTimeout     = 10 * time.Second
	readLimit       = 1 << 20
)

// Conn is the subset of *websocket.Conn the Phoenix client uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// DialFunc opens a websocket connection.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// PhoenixOptions configures a PhoenixFeed.
type PhoenixOptions struct {
	// URL is the Supabase project URL, e.g. https://xyz.supabase.co.
	URL         string
	AnonKey     string
	AccessToken string
	Heartbeat   time.Duration
	Dial        DialFunc
}

// PhoenixFeed subscribes to Postgres changes over the Supabase Realtime
// Phoenix channel protocol. Each subscription owns one socket.
type PhoenixFeed struct {
	endpoint  string
	token     string
	heartbeat time.Duration
	dial      DialFunc
	logger    *zap.Logger
}

// NewPhoenixFeed builds a feed for the project at opts.URL.
func NewPhoenixFeed(opts PhoenixOptions, logger *zap.Logger) (*PhoenixFeed, error) {
	endpoint, err := websocketURL(opts.URL, opts.AnonKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hb := opts.Heartbeat
	if hb <= 0 {
		hb = 25 * time.Second
	}
	dial := opts.Dial
	if dial == nil {
		dial = dialWebsocket
	}
	token := opts.AccessToken
	if token == "" {
		token = opts.AnonKey
	}
	return &PhoenixFeed{
		endpoint:  endpoint,
		token:     token,
		heartbeat: hb,
		dial:      dial,
		logger:    logger,
	}, nil
}

func websocketURL(base, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid realtime url %q", base)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	q := url.Values{"apikey": {apiKey}, "vsn": {protocolVersion}}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dialWebsocket(ctx context.Context, u string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, u, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// frame is a Phoenix v1 JSON message.
type frame struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref,omitempty"`
	JoinRef string `json:"join_ref,omitempty"`
}

type changeConfig struct {
	Event  EventType `json:"event"`
	Schema string    `json:"schema"`
	Table  string    `json:"table"`
	Filter string    `json:"filter,omitempty"`
}

type changeRecord struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp string          `json:"commit_timestamp"`
}

// Subscribe dials, joins a channel carrying filters, and waits for the join reply.
func (f *PhoenixFeed) Subscribe(ctx context.Context, name string, filters []Filter) (Subscription, error) {
	if len(filters) == 0 {
		return nil, errors.New("subscribe: no filters")
	}
	conn, err := f.dial(ctx, f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime: %w", err)
	}
	conn.SetReadLimit(readLimit)

	s := &phoenixSub{
		conn:    conn,
		topic:   "realtime:" + name + "-" + uuid.NewString()[:8],
		joinRef: uuid.NewString(),
		ch:      make(chan Change, 64),
		done:    make(chan struct{}),
		logger:  f.logger.With(zap.String("channel", name)),
	}

	configs := make([]changeConfig, 0, len(filters))
	for _, flt := range filters {
		configs = append(configs, changeConfig{
			Event:  flt.event(),
			Schema: flt.schema(),
			Table:  flt.Table,
			Filter: flt.Expr(),
		})
	}
	join := frame{
		Topic: s.topic,
		Event: "phx_join",
		Payload: map[string]any{
			"config": map[string]any{
				"broadcast":        map[string]any{"self": false},
				"presence":         map[string]any{"key": ""},
				"postgres_changes": configs,
			},
			"access_token": f.token,
		},
		Ref:     s.nextRef(),
		JoinRef: s.joinRef,
	}

	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	if err := s.write(joinCtx, join); err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("joining channel: %w", err)
	}
	if err := s.awaitJoin(joinCtx, join.Ref); err != nil {
		conn.Close(websocket.StatusNormalClosure, "join rejected")
		return nil, err
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s.cancel = connCancel
	go s.readLoop(connCtx)
	go s.heartbeatLoop(connCtx, f.heartbeat)
	return s, nil
}

type phoenixSub struct {
	conn    Conn
	topic   string
	joinRef string
	ref     atomic.Uint64
	ch      chan Change
	done    chan struct{}
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *phoenixSub) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

func (s *phoenixSub) write(ctx context.Context, fr frame) error {
	data, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *phoenixSub) awaitJoin(ctx context.Context, ref string) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("awaiting join reply: %w", err)
		}
		if gjson.GetBytes(data, "event").Str != "phx_reply" || gjson.GetBytes(data, "ref").Str != ref {
			continue
		}
		if status := gjson.GetBytes(data, "payload.status").Str; status != "ok" {
			reason := gjson.GetBytes(data, "payload.response.reason").Str
			return fmt.Errorf("join rejected: %s %s", status, reason)
		}
		return nil
	}
}

func (s *phoenixSub) readLoop(ctx context.Context) {
	defer close(s.done)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			s.finish(fmt.Errorf("realtime read: %w", err))
			return
		}

		event := gjson.GetBytes(data, "event").Str
		switch event {
		case "postgres_changes":
			c, err := decodeChange(data)
			if err != nil {
				s.logger.Warn("dropping malformed change", zap.Error(err))
				continue
			}
			select {
			case s.ch <- c:
			case <-ctx.Done():
				s.finish(ErrClosed)
				return
			}
		case "phx_error":
			s.finish(errors.New("realtime channel error"))
			return
		case "phx_close":
			s.finish(errors.New("realtime channel closed by server"))
			return
		case "system":
			if gjson.GetBytes(data, "payload.status").Str == "error" {
				s.logger.Warn("realtime system error", zap.String("message", gjson.GetBytes(data, "payload.message").Str))
			}
		}
	}
}

func decodeChange(data []byte) (Change, error) {
	raw := gjson.GetBytes(data, "payload.data")
	if !raw.Exists() {
		return Change{}, errors.New("postgres_changes without data")
	}
	var rec changeRecord
	if err := json.Unmarshal([]byte(raw.Raw), &rec); err != nil {
		return Change{}, err
	}
	c := Change{
		Table: rec.Table,
		Type:  rec.Type,
		New:   rec.Record,
		Old:   rec.OldRecord,
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.CommitTimestamp); err == nil {
		c.Committed = ts
	}
	return c, nil
}

func (s *phoenixSub) heartbeatLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := frame{Topic: "phoenix", Event: "heartbeat", Payload: map[string]any{}, Ref: s.nextRef()}
			if err := s.write(ctx, hb); err != nil {
				s.logger.Warn("heartbeat failed", zap.Error(err))
				s.conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

// finish records the terminal error once and closes the change stream.
func (s *phoenixSub) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if s.closed {
		err = ErrClosed
	}
	s.err = err
	close(s.ch)
}

func (s *phoenixSub) Changes() <-chan Change { return s.ch }

func (s *phoenixSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close leaves the channel and closes the socket.
func (s *phoenixSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = s.write(ctx, frame{Topic: s.topic, Event: "phx_leave", Payload: map[string]any{}, Ref: s.nextRef(), JoinRef: s.joinRef})
	cancel()

	s.cancel()
	err := s.conn.Close(websocket.StatusNormalClosure, "unsubscribe")
	<-s.done
	return err
}
