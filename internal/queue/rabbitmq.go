package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitQueue publishes to and consumes from a durable RabbitMQ queue.
type RabbitQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
}

// NewRabbitQueue dials url and declares the queue.
func NewRabbitQueue(url, name string) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitQueue{conn: conn, ch: ch, name: name}, nil
}

// Publish sends a persistent message through the default exchange.
func (q *RabbitQueue) Publish(ctx context.Context, msg Message) error {
	return q.ch.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key == queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Type:         msg.Type,
			Body:         msg.Body,
		},
	)
}

// Consume streams deliveries until ctx ends. Deliveries are auto-acked.
func (q *RabbitQueue) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := q.ch.Consume(q.name, "", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Message{Type: d.Type, Body: d.Body}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the channel and the connection.
func (q *RabbitQueue) Close() error {
	if q.ch != nil {
		if err := q.ch.Close(); err != nil {
			return err
		}
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
