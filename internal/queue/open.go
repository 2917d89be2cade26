package queue

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Name      string
	Redis     *redis.Client
	RabbitURL string
	Log       *logrus.Entry
}

// Open builds the configured queue. Broker backends come wrapped in a circuit
// breaker. The returned close func is never nil.
func Open(opts Options) (Queue, func() error, error) {
	noop := func() error { return nil }
	switch opts.Backend {
	case BackendMemory:
		return NewInMemory(64), noop, nil
	case BackendRedis, "":
		if opts.Redis == nil {
			return nil, noop, fmt.Errorf("redis queue: no client")
		}
		q := NewRedisQueue(opts.Redis, opts.Name)
		return NewGuarded(q, NewCircuitBreaker("Redis-Queue", 5*time.Second, opts.Log)), noop, nil
	case BackendRabbitMQ:
		q, err := NewRabbitQueue(opts.RabbitURL, opts.Name)
		if err != nil {
			return nil, noop, fmt.Errorf("rabbitmq queue: %w", err)
		}
		return NewGuarded(q, NewCircuitBreaker("RabbitMQ-Queue", 0, opts.Log)), q.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown queue backend %q", opts.Backend)
}
