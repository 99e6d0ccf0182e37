package messaging

import (
	"context"
	"strings"
)

type QoS byte

const (
	AtMostOnce    QoS = 0
	FireAndForget QoS = 0
	AtLeastOnce   QoS = 1
	ExactlyOnce   QoS = 2
	AsyncNoWait   QoS = 3 // not a real QoS, will switch to 0 on publish but not wait on returned token
)

// Handler receives messages in delivery order for one subscription.
type Handler func(ctx context.Context, topic string, payload []byte)

// Subscription is returned when you Subscribe you can Unsubscribe later.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

type Broker interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error
	PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v any) error
	Subscribe(ctx context.Context, topic string, qos QoS, handler Handler) (Subscription, error)
	IsConnected() bool
	Topic(parts ...string) string
}

// EventsTopic is where a service mirrors its push envelopes.
const EventsTopic = "events"

// JoinTopic joins non-empty parts with '/'.
func JoinTopic(prefix string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		all = append(all, p)
	}
	for _, part := range parts {
		if p := strings.Trim(part, "/"); p != "" {
			all = append(all, p)
		}
	}
	return strings.Join(all, "/")
}
