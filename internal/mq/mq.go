package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/types"
)

const attrEventType = "type"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// EventHandler processes a decoded account event.
type EventHandler func(ctx context.Context, event types.AccountEvent) error

// MQ publishes and consumes account events on a single channel.
type MQ struct {
	backend Backend
	channel string
	logger  *slog.Logger
}

// New constructs an MQ for the provided backend and channel.
func New(backend Backend, channel string, logger *slog.Logger) *MQ {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQ{backend: backend, channel: channel, logger: logger}
}

// Open connects the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.MQConfig, logger *slog.Logger) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	case "", "memory":
		backend = NewMemoryBackend()
	default:
		err = fmt.Errorf("unsupported mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return New(backend, cfg.Channel, logger), nil
}

// PublishEvent serializes event as JSON and publishes it. Missing ID and
// OccurredAt are filled in.
func (m *MQ) PublishEvent(ctx context.Context, event types.AccountEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	messageID, err := m.backend.Publish(ctx, m.channel, data, map[string]string{attrEventType: event.Type})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	m.logger.Debug("account event published", "type", event.Type, "event_id", event.ID, "message_id", messageID)
	return nil
}

// SubscribeEvents consumes account events until ctx is done. Messages that are
// not valid events are logged and acknowledged so they are not redelivered.
func (m *MQ) SubscribeEvents(ctx context.Context, handler EventHandler) error {
	return m.backend.Subscribe(ctx, m.channel, func(ctx context.Context, msg Message) error {
		var event types.AccountEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			m.logger.Warn("dropping malformed account event", "message_id", msg.ID, "error", err)
			return nil
		}
		return handler(ctx, event)
	})
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
