package kafka

import "context"

// Publisher is what the services depend on; *Producer satisfies it, and a
// NopPublisher stands in when event publishing is disabled or under test.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Message) error { return nil }
