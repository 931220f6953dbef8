package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher sends settlement events to a durable topic exchange.
type AMQPPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPPublisher: %w", err)
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPPublisher: dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPPublisher: channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("NewAMQPPublisher: declare exchange: %w", err)
	}

	return &AMQPPublisher{exchange: exchange, conn: conn, channel: channel}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, evt TransferEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.TransferID.String(),
		Timestamp:    evt.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
