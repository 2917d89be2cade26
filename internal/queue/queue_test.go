package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

func TestDecodeKeepsPipesInBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{name: "typed", raw: "notification|n1", want: Message{Type: "notification", Body: []byte("n1")}},
		{name: "pipe_in_body", raw: "notification|a|b", want: Message{Type: "notification", Body: []byte("a|b")}},
		{name: "untyped", raw: "n1", want: Message{Body: []byte("n1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(tt.raw)
			if got.Type != tt.want.Type || string(got.Body) != string(tt.want.Body) {
				t.Errorf("expected %q/%q, got %q/%q", tt.want.Type, tt.want.Body, got.Type, got.Body)
			}
		})
	}
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: TypeNotification, Body: []byte("n1")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-msgs:
		if msg.Type != TypeNotification || string(msg.Body) != "n1" {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	for range msgs {
	}
}

func TestRedisQueue_PublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	q := NewRedisQueue(client, "test:notifications")
	q.block = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, id := range []string{"n1", "n2"} {
		if err := q.Publish(ctx, NotificationMessage(id)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if n, _ := client.LLen(ctx, "test:notifications").Result(); n != 2 {
		t.Fatalf("expected 2 queued, got %d", n)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	var got []string
	for len(got) < 2 {
		select {
		case msg := <-msgs:
			if msg.Type != TypeNotification {
				t.Errorf("unexpected type %q", msg.Type)
			}
			got = append(got, string(msg.Body))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "n1" || got[1] != "n2" {
		t.Errorf("expected FIFO order, got %v", got)
	}
}

func TestRedisQueue_ConsumeStopsDuringBackoff(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	q := NewRedisQueue(client, "test:notifications")
	q.block = 50 * time.Millisecond
	q.backoff = time.Hour
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("expected no message from an unreachable broker")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer kept sleeping after cancel")
	}
}

type brokenQueue struct{ calls int }

func (b *brokenQueue) Publish(ctx context.Context, msg Message) error {
	b.calls++
	return errors.New("broker down")
}

func (b *brokenQueue) Consume(ctx context.Context) (<-chan Message, error) {
	return nil, errors.New("broker down")
}

func TestGuarded_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &brokenQueue{}
	g := NewGuarded(inner, NewCircuitBreaker("test", time.Minute, nil))

	for i := 0; i < 3; i++ {
		if err := g.Publish(context.Background(), Message{}); err == nil {
			t.Fatal("expected publish error")
		}
	}
	if g.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", g.State())
	}
	if err := g.Publish(context.Background(), Message{}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected open breaker to short-circuit, inner called %d times", inner.calls)
	}
}

func TestOpen(t *testing.T) {
	q, closeFn, err := Open(Options{Backend: BackendMemory})
	if err != nil || q == nil {
		t.Fatalf("memory backend: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
	if _, _, err := Open(Options{Backend: BackendRedis}); err == nil {
		t.Error("expected error without a redis client")
	}
	if _, _, err := Open(Options{Backend: "kafka"}); err == nil {
		t.Error("expected error for an unknown backend")
	}
}
