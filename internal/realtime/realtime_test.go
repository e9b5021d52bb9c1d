package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

func TestFilterExpr(t *testing.T) {
	f := Filter{Table: "messages", Column: "conversation_id", Value: "c1"}
	if got := f.Expr(); got != "conversation_id=eq.c1" {
		t.Errorf("Expr = %q", got)
	}
	if got := (Filter{Table: "read_receipts"}).Expr(); got != "" {
		t.Errorf("unscoped Expr = %q, want empty", got)
	}
}

func TestRouterDispatch(t *testing.T) {
	var got []string
	r := NewRouter().
		On("messages", Insert, func(Change) { got = append(got, "msg-insert") }).
		On("messages", Update, func(Change) { got = append(got, "msg-update") }).
		On("read_receipts", All, func(Change) { got = append(got, "receipt") })

	r.Dispatch(Change{Table: "messages", Type: Insert})
	r.Dispatch(Change{Table: "messages", Type: Update})
	r.Dispatch(Change{Table: "read_receipts", Type: Insert})
	if r.Dispatch(Change{Table: "messages", Type: Delete}) {
		t.Error("DELETE on messages has no handler")
	}

	want := []string{"msg-insert", "msg-update", "receipt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("dispatched = %v, want %v", got, want)
	}
}

func TestMemoryFeedFilters(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	scoped, _ := feed.Subscribe(ctx, "c1", []Filter{
		{Table: "messages", Column: "conversation_id", Value: "c1"},
		{Table: "read_receipts", Event: Insert},
	})
	defer scoped.Close()

	feed.Emit(Change{Table: "messages", Type: Insert, New: json.RawMessage(`{"id":"m2","conversation_id":"c2"}`)})
	feed.Emit(Change{Table: "messages", Type: Insert, New: json.RawMessage(`{"id":"m1","conversation_id":"c1"}`)})
	feed.Emit(Change{Table: "read_receipts", Type: Update, New: json.RawMessage(`{"message_id":"m9"}`)})
	feed.Emit(Change{Table: "read_receipts", Type: Insert, New: json.RawMessage(`{"message_id":"m9"}`)})

	var ids []string
	for i := 0; i < 2; i++ {
		select {
		case c := <-scoped.Changes():
			ids = append(ids, c.Table+":"+gjson.GetBytes(c.New, "id").Str+gjson.GetBytes(c.New, "message_id").Str)
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	if ids[0] != "messages:m1" || ids[1] != "read_receipts:m9" {
		t.Errorf("received %v", ids)
	}
	select {
	case c := <-scoped.Changes():
		t.Errorf("unexpected change %+v", c)
	default:
	}
}

func TestMemoryFeedCloseAndFail(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()
	a, _ := feed.Subscribe(ctx, "a", []Filter{{Table: "messages"}})
	b, _ := feed.Subscribe(ctx, "b", []Filter{{Table: "messages"}})

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-a.Changes(); ok {
		t.Error("closed subscription should have a closed channel")
	}
	if !errors.Is(a.Err(), ErrClosed) {
		t.Errorf("Err after Close = %v", a.Err())
	}
	if feed.Open() != 1 {
		t.Errorf("Open = %d, want 1", feed.Open())
	}

	boom := errors.New("socket dropped")
	feed.Fail(boom)
	if err := NewRouter().Run(b); !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want %v", err, boom)
	}
}

// phoenixServer is a minimal Supabase Realtime endpoint: it acknowledges
// joins (or rejects them), records the join payload, then pushes changes.
type phoenixServer struct {
	reject  bool
	joined  chan []byte
	push    chan string
	frames  chan []byte
	closeCh chan struct{}
}

func newPhoenixServer() *phoenixServer {
	return &phoenixServer{
		joined:  make(chan []byte, 1),
		push:    make(chan string, 4),
		frames:  make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (p *phoenixServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/realtime/v1/websocket" || r.URL.Query().Get("apikey") != "anon" {
		http.Error(w, "bad endpoint", http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	p.joined <- data
	status := "ok"
	if p.reject {
		status = "error"
	}
	reply := map[string]any{
		"topic":   gjson.GetBytes(data, "topic").Str,
		"event":   "phx_reply",
		"ref":     gjson.GetBytes(data, "ref").Str,
		"payload": map[string]any{"status": status, "response": map[string]any{"reason": "denied"}},
	}
	b, _ := json.Marshal(reply)
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return
	}

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			select {
			case p.frames <- data:
			default:
			}
		}
	}()
	for {
		select {
		case msg := <-p.push:
			if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		case <-p.closeCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func newTestFeed(t *testing.T, p *phoenixServer, heartbeat time.Duration) *PhoenixFeed {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(func() {
		close(p.closeCh)
		srv.Close()
	})
	feed, err := NewPhoenixFeed(PhoenixOptions{URL: srv.URL, AnonKey: "anon", AccessToken: "jwt", Heartbeat: heartbeat}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return feed
}

func TestPhoenixSubscribeReceivesChanges(t *testing.T) {
	p := newPhoenixServer()
	feed := newTestFeed(t, p, time.Hour)
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "messages-c1", []Filter{
		{Table: "messages", Column: "conversation_id", Value: "c1"},
		{Table: "read_receipts", Event: Insert},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	join := <-p.joined
	if gjson.GetBytes(join, "event").Str != "phx_join" {
		t.Errorf("first frame = %s", join)
	}
	if got := gjson.GetBytes(join, "payload.access_token").Str; got != "jwt" {
		t.Errorf("access_token = %q", got)
	}
	if got := gjson.GetBytes(join, "payload.config.postgres_changes.0.filter").Str; got != "conversation_id=eq.c1" {
		t.Errorf("messages filter = %q", got)
	}
	if gjson.GetBytes(join, "payload.config.postgres_changes.1.filter").Exists() {
		t.Error("read_receipts subscription should be unscoped")
	}
	if got := gjson.GetBytes(join, "payload.config.postgres_changes.1.event").Str; got != "INSERT" {
		t.Errorf("read_receipts event = %q", got)
	}

	p.push <- `{"topic":"x","event":"presence_state","payload":{},"ref":null}`
	p.push <- `{"topic":"x","event":"postgres_changes","ref":null,"payload":{"ids":[1],"data":{
		"schema":"public","table":"messages","type":"INSERT",
		"commit_timestamp":"2024-05-01T10:00:00.5Z",
		"record":{"id":"m1","conversation_id":"c1"},"old_record":null}}}`

	select {
	case c := <-sub.Changes():
		if c.Table != "messages" || c.Type != Insert {
			t.Errorf("change = %+v", c)
		}
		if gjson.GetBytes(c.New, "id").Str != "m1" {
			t.Errorf("record = %s", c.New)
		}
		if c.Committed.IsZero() {
			t.Error("commit timestamp not parsed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}
}

func TestPhoenixJoinRejected(t *testing.T) {
	p := newPhoenixServer()
	p.reject = true
	feed := newTestFeed(t, p, time.Hour)

	_, err := feed.Subscribe(context.Background(), "c1", []Filter{{Table: "messages"}})
	if err == nil || !strings.Contains(err.Error(), "join rejected") {
		t.Errorf("err = %v, want join rejected", err)
	}
}

func TestPhoenixHeartbeatAndLeave(t *testing.T) {
	p := newPhoenixServer()
	feed := newTestFeed(t, p, 20*time.Millisecond)

	sub, err := feed.Subscribe(context.Background(), "c1", []Filter{{Table: "messages"}})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case fr := <-p.frames:
		if gjson.GetBytes(fr, "topic").Str != "phoenix" || gjson.GetBytes(fr, "event").Str != "heartbeat" {
			t.Errorf("frame = %s, want heartbeat", fr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat")
	}

	_ = sub.Close()
	if _, ok := <-sub.Changes(); ok {
		t.Error("change stream still open after Close")
	}
	if !errors.Is(sub.Err(), ErrClosed) {
		t.Errorf("Err = %v, want ErrClosed", sub.Err())
	}
}

func TestWebsocketURL(t *testing.T) {
	got, err := websocketURL("https://proj.supabase.co/", "k")
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://proj.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0" {
		t.Errorf("url = %s", got)
	}
	if _, err := websocketURL("ftp://x", "k"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
