// Package queue carries notification ids from the API to the delivery worker.
package queue

import (
	"context"
	"strings"
	"time"
)

// TypeNotification carries a notification id to the worker.
const TypeNotification = "notification"

// Message is one unit of queued work.
type Message struct {
	Type string
	Body []byte
}

// NotificationMessage wraps a stored notification id.
func NotificationMessage(id string) Message {
	return Message{Type: TypeNotification, Body: []byte(id)}
}

// Queue is implemented by every backend.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// encode writes a message as Type|Body for list-based brokers.
func encode(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

// decode splits on the first pipe only, so bodies may contain pipes.
func decode(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
