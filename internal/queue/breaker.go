package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// NewCircuitBreaker opens after three consecutive failures and probes again after timeout.
func NewCircuitBreaker(name string, timeout time.Duration, log *logrus.Entry) *gobreaker.CircuitBreaker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state change")
			}
		},
	})
}

// Guarded wraps a broker-backed queue so publishes fail fast while the broker is down.
type Guarded struct {
	Queue
	cb *gobreaker.CircuitBreaker
}

// NewGuarded wraps q with cb.
func NewGuarded(q Queue, cb *gobreaker.CircuitBreaker) *Guarded {
	return &Guarded{Queue: q, cb: cb}
}

// Publish runs the inner publish through the breaker.
func (g *Guarded) Publish(ctx context.Context, msg Message) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, g.Queue.Publish(ctx, msg)
	})
	return err
}

// State reports the breaker state, for health output.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}
