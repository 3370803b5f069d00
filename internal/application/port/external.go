package port

import "context"

// OutboundMessage is one serialized message for the bus
type OutboundMessage struct {
	// Key selects the partition; messages for one case share a key
	Key   string
	Value []byte
	// Name is the @event_name, used for logging only
	Name string
}

// MessagePublisher writes messages to the bus in order
type MessagePublisher interface {
	Publish(ctx context.Context, msgs ...OutboundMessage) error
}
