package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Publisher sends JSON messages to durable queues over a dedicated channel.
// Queues are declared lazily on first use.
type Publisher struct {
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func NewPublisher() (*Publisher, error) {
	if RabbitMQ == nil {
		return nil, fmt.Errorf("rabbitmq connection not initialized")
	}
	ch, err := RabbitMQ.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &Publisher{
		channel:  ch,
		declared: make(map[string]bool),
	}, nil
}

// Publish marshals the message and delivers it persistently to the queue.
// Delivery is bounded by publishTimeout so a broker stall cannot block the
// payout path.
func (p *Publisher) Publish(queueName string, message interface{}) error {
	if err := p.ensureQueue(queueName); err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", queueName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	log.WithFields(log.Fields{"queue": queueName, "bytes": len(body)}).Debug("message published")
	return nil
}

func (p *Publisher) ensureQueue(queueName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[queueName] {
		return nil
	}
	_, err := p.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	p.declared[queueName] = true
	return nil
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
