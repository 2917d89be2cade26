package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
)

var now = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type outboxFixture struct {
	store  *attendance.MemoryStore
	q      *queue.InMemory
	outbox *Outbox
	person attendance.Person
}

func newOutboxFixture(t *testing.T) *outboxFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	store := attendance.NewMemoryStore(clock)
	p, err := store.CreatePerson(context.Background(), attendance.Person{Name: "Bob", CardID: "C2"})
	if err != nil {
		t.Fatalf("create person: %v", err)
	}
	q := queue.NewInMemory(8)
	logger, _ := test.NewNullLogger()
	return &outboxFixture{
		store:  store,
		q:      q,
		outbox: NewOutbox(q, store, clock, logrus.NewEntry(logger)),
		person: p,
	}
}

func (f *outboxFixture) queueNotification(t *testing.T) attendance.Notification {
	t.Helper()
	n, err := f.store.InsertNotification(context.Background(), attendance.NewAbsenceNotification(f.person, 3, now))
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	return n
}

func TestOutbox_PublishAndRunDelivers(t *testing.T) {
	f := newOutboxFixture(t)
	n := f.queueNotification(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.outbox.Publish(ctx, n); err != nil {
		t.Fatalf("publish: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- f.outbox.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sent, _ := f.store.ListNotifications(context.Background(), attendance.NotificationSent)
		if len(sent) == 1 {
			if sent[0].SentAt == nil || !sent[0].SentAt.Equal(now) {
				t.Errorf("expected sent at %s, got %v", now, sent[0].SentAt)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delivery")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestOutbox_SweepRequeuesOnlyPending(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()
	first := f.queueNotification(t)
	f.queueNotification(t)
	if err := f.outbox.Deliver(ctx, first.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	n, err := f.outbox.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued notification, got %d", n)
	}
}

func TestOutbox_DeliverIsIdempotent(t *testing.T) {
	f := newOutboxFixture(t)
	ctx := context.Background()
	n := f.queueNotification(t)

	if err := f.outbox.Deliver(ctx, n.ID); err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	if err := f.outbox.Deliver(ctx, n.ID); err != nil {
		t.Errorf("expected second deliver to be a no-op, got %v", err)
	}
	if err := f.outbox.Deliver(ctx, "missing"); !errors.Is(err, attendance.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweeper_StartRejectsBadSpec(t *testing.T) {
	f := newOutboxFixture(t)
	s := NewSweeper(f.outbox, "not a schedule", nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	f := newOutboxFixture(t)
	s := NewSweeper(f.outbox, "@every 1h", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}
