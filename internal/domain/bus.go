package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication around
// pipeline runs. Supports Go channels (in-process) or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `toml:"type"`

	// Channel settings
	ChannelBufferSize int `toml:"channelBufferSize"`

	// NATS settings
	NATSUrl           string `toml:"natsUrl"`
	NATSToken         string `toml:"natsToken"`
	NATSMaxReconnects int    `toml:"natsMaxReconnects"`
	NATSReconnectWait int    `toml:"natsReconnectWait"` // seconds
}

// Standard topic names for the pipeline.
const (
	TopicRunRequested = "riskmetric.run.requested"
	TopicRunCompleted = "riskmetric.run.completed"
	TopicRunFailed    = "riskmetric.run.failed"
	TopicAlert        = "riskmetric.alert"
)
