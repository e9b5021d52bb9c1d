package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/gymchat/internal/bus"
	"github.com/matheus3301/gymchat/internal/chat"
	"github.com/matheus3301/gymchat/internal/identity"
	"github.com/matheus3301/gymchat/internal/model"
	"github.com/matheus3301/gymchat/internal/netmon"
	"github.com/matheus3301/gymchat/internal/realtime"
	"github.com/matheus3301/gymchat/internal/remote"
	"github.com/matheus3301/gymchat/internal/rpc"
	"github.com/matheus3301/gymchat/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubRemote struct {
	mu      sync.Mutex
	list    []model.Message
	fail    map[string]bool
	next    int
	listErr error
}

func (r *stubRemote) ListMessages(context.Context, string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]model.Message(nil), r.list...), nil
}

func (r *stubRemote) InsertMessage(_ context.Context, d model.Draft) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[d.Content] {
		return model.Message{}, fmt.Errorf("insert: %w", remote.ErrUnavailable)
	}
	r.next++
	now := time.Now()
	return model.Message{
		ID:             fmt.Sprintf("srv-%d", r.next),
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Content:        d.Content,
		Kind:           d.Kind,
		Status:         model.StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (r *stubRemote) MarkMessagesRead(context.Context, string, string) error { return nil }

func (r *stubRemote) UpdateLastRead(context.Context, string, string, time.Time) error { return nil }

func (r *stubRemote) Profile(_ context.Context, userID string) (remote.ProfileRow, error) {
	return remote.ProfileRow{}, remote.ErrNotFound
}

type harness struct {
	client  *rpc.ChatServiceClient
	remote  *stubRemote
	monitor *netmon.Monitor
	bus     *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "gymchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	monitor := netmon.NewMonitor(nil, netmon.NewEventSource(true), b, nil)
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(monitor.Stop)

	rem := &stubRemote{fail: map[string]bool{}}
	mgr := chat.NewManager(chat.ManagerConfig{
		Viewer:     &identity.Identity{UserID: "me", DisplayName: "Me"},
		Remote:     rem,
		Feed:       realtime.NewMemoryFeed(),
		Net:        monitor,
		Storage:    db,
		ReadStates: db,
		Bus:        b,
	})
	mgr.Start(context.Background())
	t.Cleanup(mgr.Stop)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterChatServiceServer(srv, NewChatService("test", mgr, monitor, b, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: rpc.NewChatServiceClient(conn), remote: rem, monitor: monitor, bus: b}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestStatusAndOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.list = []model.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "coach", Content: "hi", Kind: model.KindText, Status: model.StatusSent, CreatedAt: time.UnixMilli(1700000000123)},
	}

	st, err := h.client.OpenConversation(ctx, &rpc.ConversationRequest{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("OpenConversation error = %v", err)
	}
	if st.Messages != 1 || !st.Online {
		t.Errorf("state = %+v, want 1 message online", st)
	}

	resp, err := h.client.Status(ctx, &rpc.StatusRequest{})
	if err != nil {
		t.Fatalf("Status error = %v", err)
	}
	if resp.Profile != "test" || resp.UserID != "me" {
		t.Errorf("status = %+v", resp)
	}
	if resp.Network != string(netmon.Online) || !resp.UsingFallback {
		t.Errorf("network = %q fallback=%v, want ONLINE via fallback", resp.Network, resp.UsingFallback)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].ConversationID != "c1" {
		t.Errorf("conversations = %+v", resp.Conversations)
	}

	list, err := h.client.ListMessages(ctx, &rpc.ConversationRequest{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Messages) != 1 || list.Messages[0].CreatedAtMs != 1700000000123 {
		t.Errorf("messages = %+v, want created_at_ms preserved", list.Messages)
	}
}

func TestSendOnlineAndQueuedOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "set done"})
	if err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}
	if resp.Queued || resp.Message == nil || resp.Message.ID != "srv-1" || resp.Message.Status != "sent" {
		t.Errorf("online send = %+v", resp)
	}

	if _, err := h.client.SetNetwork(ctx, &rpc.SetNetworkRequest{Online: false}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline", func() bool { return !h.monitor.Online() })

	resp, err = h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "later"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Queued || !model.IsQueuedID(resp.Message.ID) {
		t.Errorf("offline send = %+v, want queued placeholder", resp.Message)
	}

	if _, err := h.client.SetNetwork(ctx, &rpc.SetNetworkRequest{Online: true}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "queue drained", func() bool {
		st, err := h.client.Status(ctx, &rpc.StatusRequest{})
		return err == nil && len(st.Conversations) == 1 && st.Conversations[0].QueueLen == 0 && st.Conversations[0].Pending == 0
	})
}

func TestSendBlankAndInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "   "})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Skipped || resp.Message != nil {
		t.Errorf("blank send = %+v, want skipped", resp)
	}

	_, err = h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "x", Kind: "video"})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("invalid kind code = %v, want InvalidArgument", grpcstatus.Code(err))
	}

	_, err = h.client.SendMessage(ctx, &rpc.SendRequest{Content: "x"})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("missing conversation code = %v, want InvalidArgument", grpcstatus.Code(err))
	}
}

func TestSendFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.fail["flaky"] = true

	_, err := h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "flaky"})
	if grpcstatus.Code(err) != codes.Unavailable {
		t.Fatalf("failed send code = %v, want Unavailable", grpcstatus.Code(err))
	}

	list, err := h.client.ListMessages(ctx, &rpc.ConversationRequest{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Messages) != 1 || list.Messages[0].Status != "failed" {
		t.Fatalf("messages = %+v, want one failed placeholder", list.Messages)
	}
	localID := list.Messages[0].ID

	h.remote.mu.Lock()
	delete(h.remote.fail, "flaky")
	h.remote.mu.Unlock()

	resp, err := h.client.RetryMessage(ctx, &rpc.RetryRequest{ConversationID: "c1", LocalID: localID})
	if err != nil {
		t.Fatalf("RetryMessage error = %v", err)
	}
	if resp.Message.Status != "sent" || resp.Message.Pending {
		t.Errorf("retried message = %+v", resp.Message)
	}

	_, err = h.client.RetryMessage(ctx, &rpc.RetryRequest{ConversationID: "c1", LocalID: "temp_0_nope"})
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("unknown retry code = %v, want NotFound", grpcstatus.Code(err))
	}
}

func TestCloseAndMarkReadRequireOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.client.CloseConversation(ctx, &rpc.ConversationRequest{ConversationID: "c9"}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("close code = %v, want NotFound", grpcstatus.Code(err))
	}
	if _, err := h.client.MarkRead(ctx, &rpc.ConversationRequest{ConversationID: "c9"}); grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("mark read code = %v, want NotFound", grpcstatus.Code(err))
	}

	if _, err := h.client.OpenConversation(ctx, &rpc.ConversationRequest{ConversationID: "c9"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.MarkRead(ctx, &rpc.ConversationRequest{ConversationID: "c9"}); err != nil {
		t.Errorf("MarkRead error = %v", err)
	}
	if _, err := h.client.CloseConversation(ctx, &rpc.ConversationRequest{ConversationID: "c9"}); err != nil {
		t.Errorf("CloseConversation error = %v", err)
	}
}

func TestOpenLoadFailureIsUnavailable(t *testing.T) {
	h := newHarness(t)
	h.remote.listErr = errors.New("boom")

	_, err := h.client.OpenConversation(context.Background(), &rpc.ConversationRequest{ConversationID: "c1"})
	if grpcstatus.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", grpcstatus.Code(err))
	}
}

func TestSendQueuesWhenLoadFailsOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.client.SetNetwork(ctx, &rpc.SetNetworkRequest{Online: false}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline", func() bool { return !h.monitor.Online() })
	h.remote.mu.Lock()
	h.remote.listErr = fmt.Errorf("list: %w", remote.ErrUnavailable)
	h.remote.mu.Unlock()

	resp, err := h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "rest day"})
	if err != nil {
		t.Fatalf("SendMessage error = %v", err)
	}
	if !resp.Queued || !model.IsQueuedID(resp.Message.ID) {
		t.Errorf("send = %+v, want queued placeholder", resp)
	}

	st, err := h.client.Status(ctx, &rpc.StatusRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Conversations) != 1 || st.Conversations[0].QueueLen != 1 || st.Conversations[0].Loaded {
		t.Errorf("conversations = %+v, want c1 open, unloaded, one queued", st.Conversations)
	}
}

func TestRetryWhileOfflineReportsQueued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.fail["pr attempt"] = true

	if _, err := h.client.SendMessage(ctx, &rpc.SendRequest{ConversationID: "c1", Content: "pr attempt"}); grpcstatus.Code(err) != codes.Unavailable {
		t.Fatalf("failed send code = %v, want Unavailable", grpcstatus.Code(err))
	}
	list, err := h.client.ListMessages(ctx, &rpc.ConversationRequest{ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Messages) != 1 || !model.IsTempID(list.Messages[0].ID) {
		t.Fatalf("messages = %+v, want one failed temp placeholder", list.Messages)
	}

	if _, err := h.client.SetNetwork(ctx, &rpc.SetNetworkRequest{Online: false}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "offline", func() bool { return !h.monitor.Online() })

	resp, err := h.client.RetryMessage(ctx, &rpc.RetryRequest{ConversationID: "c1", LocalID: list.Messages[0].ID})
	if err != nil {
		t.Fatalf("RetryMessage error = %v", err)
	}
	if !resp.Queued || resp.Message.ID != list.Messages[0].ID || resp.Message.Status != "sending" {
		t.Errorf("offline retry = %+v, want queued temp placeholder", resp)
	}
}

func TestWatchEventsFiltersByConversation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv, err := h.client.WatchEvents(ctx, &rpc.WatchRequest{Prefix: "message.", ConversationID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	// The subscription is registered server-side once the stream is running.
	time.Sleep(50 * time.Millisecond)

	h.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: "c2", Payload: model.Message{ID: "other"}})
	h.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, ConversationID: "c1", Payload: model.Message{ID: "m1", CreatedAt: time.UnixMilli(42)}})

	evt, err := recv.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != bus.KindMessageUpserted || evt.ConversationID != "c1" || evt.Profile != "test" {
		t.Fatalf("event = %+v", evt)
	}
	var msg rpc.Message
	if err := json.Unmarshal(evt.Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m1" || msg.CreatedAtMs != 42 {
		t.Errorf("payload = %+v", msg)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", chat.ErrNotOpen), codes.NotFound},
		{fmt.Errorf("x: %w", chat.ErrNotRetryable), codes.FailedPrecondition},
		{&chat.SendError{Err: remote.ErrUnauthorized}, codes.Unauthenticated},
		{&chat.LoadError{Err: errors.New("x")}, codes.Unavailable},
		{fmt.Errorf("open c1: %w", chat.ErrStopped), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("other"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
