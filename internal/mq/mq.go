package mq

import "context"

// Publisher sends messages to a named channel on a broker. This API only
// publishes: nothing in the server consumes messages, downstream
// integrations subscribe with their own tooling.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}
