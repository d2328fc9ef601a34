package channel

import "context"

// Transport dials a fresh bus connection. Every Channel that subscribes gets its own
// connection, so two logical subscribers never share a subscription object.
type Transport interface {
	Dial(ctx context.Context, onStatus func(Status)) (Conn, error)
}

// Conn is one live connection to the bus
type Conn interface {
	Subscribe(ctx context.Context, topic string, deliver func(data []byte)) (Subscription, error)
	Publish(ctx context.Context, topic string, data []byte) error
	Close() error
}

// Subscription is an active topic subscription on a Conn
type Subscription interface {
	Unsubscribe() error
}
