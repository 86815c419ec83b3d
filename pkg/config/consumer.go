package config

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Consumer delivers messages from one durable queue to a handler with
// manual acks. A failing handler nacks with requeue so commands survive
// transient errors.
type Consumer struct {
	channel *amqp.Channel
	queue   string
}

func NewConsumer(queueName string) (*Consumer, error) {
	if RabbitMQ == nil {
		return nil, fmt.Errorf("rabbitmq connection not initialized")
	}
	ch, err := RabbitMQ.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &Consumer{channel: ch, queue: q.Name}, nil
}

// Consume blocks, dispatching deliveries to the handler until the channel
// closes.
func (c *Consumer) Consume(handler func([]byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	log.WithField("queue", c.queue).Info("consumer started")
	for msg := range msgs {
		if err := handler(msg.Body); err != nil {
			log.WithField("queue", c.queue).Errorf("handler failed, requeueing: %v", err)
			if nackErr := msg.Nack(false, true); nackErr != nil {
				log.Errorf("failed to nack message: %v", nackErr)
			}
			continue
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Errorf("failed to ack message: %v", ackErr)
		}
	}
	return nil
}

// Close closes the consumer channel, which also ends Consume.
func (c *Consumer) Close() error {
	return c.channel.Close()
}
