package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope written to the broker channel.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
