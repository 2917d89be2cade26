// Package notify moves queued notifications from the store to the delivery worker.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

const (
	deliverTimeout = 10 * time.Second
	sweepTimeout   = time.Minute
)

// Store is the notification side of the attendance store.
type Store interface {
	ListNotifications(ctx context.Context, status string) ([]attendance.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, at time.Time) (attendance.Notification, error)
}

// Outbox publishes stored notifications and performs their send-action.
// Notifications are always persisted before they are published, so a failed
// publish is picked up by the next Sweep.
type Outbox struct {
	q     queue.Queue
	store Store
	clock clockwork.Clock
	log   *logrus.Entry
}

func NewOutbox(q queue.Queue, store Store, clock clockwork.Clock, log *logrus.Entry) *Outbox {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Outbox{q: q, store: store, clock: clock, log: log.WithField("component", "outbox")}
}

// Publish enqueues the id of a stored notification.
func (o *Outbox) Publish(ctx context.Context, n attendance.Notification) error {
	err := o.q.Publish(ctx, queue.NotificationMessage(n.ID))
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		return err
	}
	metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Sweep republishes every pending notification and returns how many were queued.
func (o *Outbox) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	pending, err := o.store.ListNotifications(ctx, attendance.NotificationPending)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, n := range pending {
		if err := o.Publish(ctx, n); err != nil {
			o.log.WithError(err).WithField("notification_id", n.ID).Warn("sweep publish failed")
			continue
		}
		published++
	}
	if published > 0 {
		o.log.WithField("count", published).Info("pending notifications requeued")
	}
	return published, nil
}

// Deliver performs the send-action for id. Delivering twice is not an error.
func (o *Outbox) Deliver(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	n, err := o.store.MarkNotificationSent(ctx, id, o.clock.Now())
	if errors.Is(err, attendance.ErrAlreadySent) {
		o.log.WithField("notification_id", id).Debug("already sent")
		return nil
	}
	if err != nil {
		return err
	}
	o.log.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"person_id":       n.PersonID,
		"absent_days":     n.AbsentDays,
	}).Info(n.Message)
	return nil
}

// Run consumes the queue and delivers notifications until ctx ends.
func (o *Outbox) Run(ctx context.Context) error {
	msgs, err := o.q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if msg.Type != queue.TypeNotification {
			o.log.WithField("type", msg.Type).Warn("skipping unknown message")
			continue
		}
		if err := o.Deliver(ctx, string(msg.Body)); err != nil {
			o.log.WithError(err).WithField("notification_id", string(msg.Body)).Error("delivery failed")
		}
	}
	return ctx.Err()
}
