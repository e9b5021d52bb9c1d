package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/gymchat/internal/model"
)

func TestMarkReadUpdatesWatermark(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.conv.MarkRead(ctx)
	select {
	case <-f.remote.markCalls:
	case <-time.After(time.Second):
		t.Fatal("bulk receipt rpc not called")
	}
	var at time.Time
	select {
	case at = <-f.remote.readCalls:
	case <-time.After(time.Second):
		t.Fatal("watermark not updated")
	}

	eventually(t, "local read state saved", func() bool {
		rs, err := f.db.GetReadState(ctx, "c1")
		return err == nil && rs != nil && rs.Synced && rs.LastReadAt.Equal(at.Truncate(time.Millisecond))
	})
}

func TestMarkReadFailuresAreReceiptErrors(t *testing.T) {
	f := newFixture(t, true)
	f.remote.markErr = errors.New("rpc down")
	f.remote.lastReadErr = errors.New("patch down")

	err := f.conv.markRead(context.Background())
	var rerr *ReceiptError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want ReceiptError", err)
	}
	// The watermark is still attempted after the rpc fails.
	if len(f.remote.readCalls) != 1 {
		t.Error("watermark update skipped after rpc failure")
	}
	rs, _ := f.db.GetReadState(context.Background(), "c1")
	if rs == nil || rs.Synced {
		t.Errorf("read state = %+v, want unsynced local watermark", rs)
	}
}

func TestUnreadCountUsesWatermark(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.conv.MergeInsert(serverMsg("m1", "coach", base.Add(10*time.Minute)))
	f.conv.MergeInsert(serverMsg("m2", viewerID, base.Add(15*time.Minute)))
	f.conv.MergeInsert(serverMsg("m3", "coach", base.Add(20*time.Minute)))

	n, err := f.conv.UnreadCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	if err := f.db.SaveReadState(ctx, "c1", base.Add(15*time.Minute), true); err != nil {
		t.Fatal(err)
	}
	n, _ = f.conv.UnreadCount(ctx)
	if n != 1 {
		t.Errorf("unread after watermark = %d, want 1", n)
	}
}

func TestReadersForGroupDisplay(t *testing.T) {
	f := newFixture(t, true)
	f.conv.MergeInsert(serverMsg("mine", viewerID, base))
	f.conv.MergeInsert(serverMsg("from-bea", "u2", base.Add(time.Second)))

	f.conv.MergeReceipt(model.ReadReceipt{MessageID: "mine", UserID: "u2", ReaderName: "Bea"})
	f.conv.MergeReceipt(model.ReadReceipt{MessageID: "mine", UserID: "u3"})
	f.conv.MergeReceipt(model.ReadReceipt{MessageID: "mine", UserID: "u2", ReaderName: "Bea"})

	m, _ := f.conv.Message("mine")
	if model.ReadCount(&m) != 2 {
		t.Errorf("ReadCount = %d, want 2", model.ReadCount(&m))
	}
	names := model.ReaderNames(&m)
	if len(names) != 2 || names[0] != "Bea" || names[1] != "u3" {
		t.Errorf("ReaderNames = %v", names)
	}
}
