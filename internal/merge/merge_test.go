package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/guestcart"
	"storefront/internal/kvstore"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/session"
	"storefront/internal/storeapi"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// serverCart adds quantities the way the commerce API does.
type serverCart struct {
	mu    sync.Mutex
	qty   map[model.LineKey]int
	fail  map[string]bool
	calls atomic.Int32
	delay time.Duration
}

func newServerCart() *serverCart {
	return &serverCart{qty: map[model.LineKey]int{}, fail: map[string]bool{}}
}

func (s *serverCart) mock() *storeapi.Mock {
	return &storeapi.Mock{
		AddLineFunc: func(ctx context.Context, userID, productID string, qty int, size string) error {
			s.calls.Add(1)
			if s.delay > 0 {
				time.Sleep(s.delay)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.fail[productID] {
				return model.NewUpstreamError("commerce", errors.New("timeout"))
			}
			s.qty[model.LineKey{ProductID: productID, Size: size}] += qty
			return nil
		},
	}
}

type reloadCounter struct{ n atomic.Int32 }

func (r *reloadCounter) Load(context.Context) (model.CartView, error) {
	r.n.Add(1)
	return model.CartView{Authenticated: true}, nil
}

type fixture struct {
	sess   *session.Session
	local  *guestcart.Store
	server *serverCart
	reload *reloadCounter
	inbox  *notify.Inbox
	c      *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := kvstore.NewMemory()
	f := &fixture{
		sess:   session.New("s1", kv, discard),
		local:  guestcart.New(kv, discard),
		server: newServerCart(),
		reload: &reloadCounter{},
		inbox:  notify.NewInbox(8),
	}
	f.c = New(Config{
		Session:  f.sess,
		Local:    f.local,
		API:      f.server.mock(),
		Cart:     f.reload,
		Notifier: f.inbox,
		Logger:   discard,
	})
	return f
}

func (f *fixture) addGuest(productID, size string, qty int) {
	f.local.AddOrIncrement(context.Background(), model.CartLine{ProductID: productID, SelectedSize: size, Quantity: qty, UnitPrice: 100})
}

func key(productID, size string) model.LineKey {
	return model.LineKey{ProductID: productID, Size: size}
}

// Guest adds A x2 and B x1, then signs in with A x1 already on the server.
func TestMerge_GuestCartIntoServerCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.server.qty[key("A", "M")] = 1
	f.addGuest("A", "M", 2)
	f.addGuest("B", "M", 1)
	f.sess.Begin("u1", "tok")

	res, err := f.c.Merge(ctx)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Merged != 2 {
		t.Errorf("Merged = %d, want 2", res.Merged)
	}
	if got := f.server.qty[key("A", "M")]; got != 3 {
		t.Errorf("server A = %d, want 3", got)
	}
	if got := f.server.qty[key("B", "M")]; got != 1 {
		t.Errorf("server B = %d, want 1", got)
	}
	if lines := f.local.Load(ctx); len(lines) != 0 {
		t.Errorf("guest cart = %v, want empty", lines)
	}
	if !f.sess.Merged(ctx) {
		t.Error("merge flag not set")
	}
	if f.reload.n.Load() != 1 {
		t.Errorf("reloads = %d, want 1", f.reload.n.Load())
	}
	if got := f.inbox.Drain(); len(got) != 1 || got[0].Kind != notify.KindInfo {
		t.Errorf("notifications = %+v, want one info", got)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addGuest("A", "M", 2)
	f.sess.Begin("u1", "tok")

	if _, err := f.c.Merge(ctx); err != nil {
		t.Fatalf("first Merge() error = %v", err)
	}
	// A later guest add in the same session is not transplanted again.
	f.addGuest("C", "S", 1)
	res, err := f.c.Merge(ctx)
	if err != nil {
		t.Fatalf("second Merge() error = %v", err)
	}
	if !res.Skipped || res.Reason != ReasonDone {
		t.Errorf("second Merge() = %+v, want skipped (%s)", res, ReasonDone)
	}
	if got := f.server.calls.Load(); got != 1 {
		t.Errorf("AddLine calls = %d, want 1", got)
	}
}

func TestMerge_ConcurrentTriggersAtMostOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.server.delay = 20 * time.Millisecond
	f.addGuest("A", "M", 1)
	f.addGuest("B", "L", 3)
	f.sess.Begin("u1", "tok")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.c.Merge(ctx); err != nil {
				t.Errorf("Merge() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.server.calls.Load(); got != 2 {
		t.Errorf("AddLine calls = %d, want 2", got)
	}
	if got := f.server.qty[key("B", "L")]; got != 3 {
		t.Errorf("server B = %d, want 3", got)
	}
}

func TestMerge_PartialFailureKeepsFailedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.server.fail["B"] = true
	f.addGuest("A", "M", 1)
	f.addGuest("B", "M", 2)
	f.sess.Begin("u1", "tok")

	res, err := f.c.Merge(ctx)
	if !errors.Is(err, model.ErrPartialFailure) {
		t.Fatalf("Merge() error = %v, want ErrPartialFailure", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != key("B", "M") {
		t.Errorf("Failed = %v, want [B:M]", res.Failed)
	}
	if f.sess.Merged(ctx) {
		t.Error("merge flag set after partial failure")
	}
	lines := f.local.Load(ctx)
	if len(lines) != 1 || lines[0].Key() != key("B", "M") || lines[0].Quantity != 2 {
		t.Errorf("guest cart = %+v, want only B:M x2", lines)
	}
	if got := f.inbox.Drain(); len(got) != 1 || got[0].Kind != notify.KindWarning {
		t.Errorf("notifications = %+v, want one warning", got)
	}

	// Retry re-sends only the failed line.
	delete(f.server.fail, "B")
	if _, err := f.c.Merge(ctx); err != nil {
		t.Fatalf("retry Merge() error = %v", err)
	}
	if got := f.server.qty[key("A", "M")]; got != 1 {
		t.Errorf("server A = %d, want 1 (not duplicated)", got)
	}
	if got := f.server.qty[key("B", "M")]; got != 2 {
		t.Errorf("server B = %d, want 2", got)
	}
	if !f.sess.Merged(ctx) {
		t.Error("merge flag not set after successful retry")
	}
}

func TestMerge_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		reason string
	}{
		{
			name:   "guest",
			setup:  func(f *fixture) { f.addGuest("A", "M", 1) },
			reason: ReasonGuest,
		},
		{
			name:   "empty guest cart",
			setup:  func(f *fixture) { f.sess.Begin("u1", "tok") },
			reason: ReasonEmptyCart,
		},
		{
			name: "already merged",
			setup: func(f *fixture) {
				f.addGuest("A", "M", 1)
				f.sess.Begin("u1", "tok")
				f.sess.MarkMerged(context.Background())
			},
			reason: ReasonDone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			res, err := f.c.Merge(context.Background())
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			if !res.Skipped || res.Reason != tt.reason {
				t.Errorf("Merge() = %+v, want skipped (%s)", res, tt.reason)
			}
			if f.server.calls.Load() != 0 {
				t.Errorf("AddLine calls = %d, want 0", f.server.calls.Load())
			}
		})
	}
}

func TestMerge_ReflagsAfterLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addGuest("A", "M", 1)
	f.sess.Begin("u1", "tok")
	f.c.Merge(ctx)

	f.sess.End(ctx)
	f.addGuest("B", "M", 1)
	f.sess.Begin("u1", "tok")

	res, err := f.c.Merge(ctx)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if res.Merged != 1 {
		t.Errorf("Merged = %d, want 1", res.Merged)
	}
}
