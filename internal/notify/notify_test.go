package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInbox_KeepsVisitorFacingOnly(t *testing.T) {
	b := NewInbox(4)
	ctx := context.Background()

	b.Notify(ctx, Notification{Kind: KindWarning, Topic: TopicCartMerge, Message: "1 item not merged"})
	b.Notify(ctx, Notification{Kind: KindEscalation, Topic: TopicPaymentUnconfirmed})
	b.Notify(ctx, Notification{Kind: KindEvent, Topic: TopicCheckoutConfirmed})

	got := b.Drain()
	if len(got) != 1 {
		t.Fatalf("Drain() len = %d, want 1", len(got))
	}
	if got[0].Topic != TopicCartMerge {
		t.Errorf("Topic = %q, want %q", got[0].Topic, TopicCartMerge)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", b.Len())
	}
}

func TestInbox_DropsOldest(t *testing.T) {
	b := NewInbox(2)
	ctx := context.Background()
	for _, msg := range []string{"a", "b", "c"} {
		b.Notify(ctx, Notification{Kind: KindInfo, Message: msg})
	}

	got := b.Drain()
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Errorf("Drain() = %+v, want [b c]", got)
	}
}

func TestInbox_DrainEmpty(t *testing.T) {
	got := NewInbox(0).Drain()
	if got == nil || len(got) != 0 {
		t.Errorf("Drain() = %v, want empty non-nil", got)
	}
}

func TestMulti_StampsTime(t *testing.T) {
	var seen []Notification
	rec := Func(func(_ context.Context, n Notification) { seen = append(seen, n) })

	Multi{rec, nil, rec}.Notify(context.Background(), Notification{Kind: KindInfo})

	if len(seen) != 2 {
		t.Fatalf("delivered %d times, want 2", len(seen))
	}
	if seen[0].Time.IsZero() {
		t.Error("Time not stamped")
	}
}

func TestLog_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Notify(context.Background(), Notification{
		Kind:    KindEscalation,
		Topic:   TopicPaymentUnconfirmed,
		Message: "payment could not be verified",
		OrderID: "ord-1",
		Time:    time.Now(),
	})

	out := buf.String()
	for _, want := range []string{"level=ERROR", "order_id=ord-1", "topic=support.payment-unconfirmed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
