package sim

import (
	"context"

	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/messaging"
)

// StatusTopic holds the last connection status, retained.
const StatusTopic = "status"

// Mirror republishes every service event on <prefix>/events so consoles and
// monitors can follow the service over MQTT.
type Mirror struct {
	broker messaging.Broker
	events string
	status string
}

func NewMirror(broker messaging.Broker) *Mirror {
	return &Mirror{
		broker: broker,
		events: broker.Topic(messaging.EventsTopic),
		status: broker.Topic(StatusTopic),
	}
}

func (m *Mirror) Publish(ev mbc.Event) {
	if !m.broker.IsConnected() {
		return
	}
	ctx := context.Background()
	if err := m.broker.PublishJSON(ctx, m.events, messaging.AsyncNoWait, false, ev); err != nil {
		logging.Warn("mirror publish failed", "topic", m.events, "type", ev.Type, "error", err)
	}
	if ev.Type == mbc.EventStatus {
		if err := m.broker.PublishJSON(ctx, m.status, messaging.AsyncNoWait, true, ev.Payload); err != nil {
			logging.Warn("mirror publish failed", "topic", m.status, "error", err)
		}
	}
}

// StatusOnConnect republishes the retained status after every broker
// (re)connect.
func (m *Mirror) StatusOnConnect(status func() mbc.ConnectionStatus) messaging.OnConnectPublisher {
	return func() (messaging.PublishRequest, error) {
		return messaging.PublishRequest{
			Topic:   m.status,
			Qos:     messaging.AtLeastOnce,
			Retain:  true,
			Payload: status(),
		}, nil
	}
}
