package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const QueueName = "appointment_events"

// AMQPNotifier publishes appointment events to a durable RabbitMQ queue
// consumed by the (external) WhatsApp/notification dispatcher.
type AMQPNotifier struct {
	ch  *amqp.Channel
	log *zap.Logger
	mu  sync.Mutex
}

// NewAMQPNotifier opens a channel on the connection and declares the
// durable event queue.
func NewAMQPNotifier(conn *amqp.Connection, log *zap.Logger) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", QueueName, err)
	}

	return &AMQPNotifier{ch: ch, log: log}, nil
}

func (n *AMQPNotifier) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	err = n.ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}

	n.log.Debug("published appointment event",
		zap.String("type", ev.Type),
		zap.String("appointment_id", ev.AppointmentID.String()),
	)

	return nil
}

func (n *AMQPNotifier) Close() error {
	return n.ch.Close()
}
