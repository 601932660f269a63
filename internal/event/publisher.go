// Package event publishes session lifecycle events to a RabbitMQ topic
// exchange.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/abhisek/adaptiq/internal/session"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "adaptiq.sessions"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is the JSON body of a published event.
type Message struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	LearnerID string         `json:"learner_id"`
	Version   int            `json:"version"`
	At        string         `json:"at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher sends events to a topic exchange. The routing key is the event
// type, so consumers can bind to "session.*" or to a single type.
// It implements session.EventSink.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger
}

// Dial connects to url and declares a durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(_ context.Context, ev session.Event) error {
	body, err := json.Marshal(Encode(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(
		p.exchange,
		string(ev.Type), // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			MessageId:    fmt.Sprintf("%s/%d", ev.SessionID, ev.Version),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.logger.Debug("event published", "type", ev.Type, "session_id", ev.SessionID, "version", ev.Version)
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Encode converts a session event to its wire form.
func Encode(ev session.Event) Message {
	return Message{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		LearnerID: ev.LearnerID,
		Version:   ev.Version,
		At:        ev.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Payload:   ev.Data,
	}
}
