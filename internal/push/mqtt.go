package push

import (
	"context"
	"time"

	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/messaging"
)

// MQTT follows the envelopes a service mirrors on <prefix>/events. The
// broker handles reconnects; events arrive in publish order.
type MQTT struct {
	broker messaging.Broker
}

func NewMQTT(broker messaging.Broker) *MQTT {
	return &MQTT{broker: broker}
}

func (m *MQTT) Run(ctx context.Context, sink Sink) error {
	if err := m.broker.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.broker.Close(closeCtx)
	}()

	topic := m.broker.Topic(messaging.EventsTopic)
	sub, err := m.broker.Subscribe(ctx, topic, messaging.AtLeastOnce, func(_ context.Context, topic string, payload []byte) {
		ev, err := Decode(payload)
		if err != nil {
			logging.Debug("skipping mqtt push message", "topic", topic, "error", err)
			return
		}
		sink.Post(ev)
	})
	if err != nil {
		return err
	}
	logging.Info("push channel subscribed", "topic", topic)

	<-ctx.Done()
	unsubCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = sub.Unsubscribe(unsubCtx)
	return ctx.Err()
}
