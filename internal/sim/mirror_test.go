package sim

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/messaging"
	"github.com/fisaks/mbconsole/internal/push"
	"github.com/fisaks/mbconsole/internal/reconcile"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

// captureBroker records publishes.
type captureBroker struct {
	online bool
	out    []published
}

func (c *captureBroker) Connect(context.Context) error { return nil }
func (c *captureBroker) Close(context.Context) error   { return nil }
func (c *captureBroker) Publish(_ context.Context, topic string, _ messaging.QoS, retain bool, payload []byte) error {
	c.out = append(c.out, published{topic, retain, payload})
	return nil
}
func (c *captureBroker) PublishJSON(ctx context.Context, topic string, qos messaging.QoS, retain bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Publish(ctx, topic, qos, retain, data)
}
func (c *captureBroker) Subscribe(context.Context, string, messaging.QoS, messaging.Handler) (messaging.Subscription, error) {
	return nil, nil
}
func (c *captureBroker) IsConnected() bool            { return c.online }
func (c *captureBroker) Topic(parts ...string) string { return messaging.JoinTopic("mbc", parts...) }

func TestMirrorPublishesDecodableEnvelopes(t *testing.T) {
	cb := &captureBroker{online: true}
	m := NewMirror(cb)

	m.Publish(mbc.Event{Type: mbc.EventStats, Payload: mbc.Stats{ReadCount: 2}})
	m.Publish(mbc.Event{Type: mbc.EventStatus, Payload: mbc.ConnectionStatus{Connected: true}})

	require.Len(t, cb.out, 3)
	require.Equal(t, "mbc/events", cb.out[0].topic)
	require.Equal(t, "mbc/events", cb.out[1].topic)
	require.Equal(t, "mbc/status", cb.out[2].topic)
	require.True(t, cb.out[2].retain)

	ev, err := push.Decode(cb.out[0].payload)
	require.NoError(t, err)
	require.Equal(t, reconcile.PushStats{Stats: mbc.Stats{ReadCount: 2}}, ev)

	ev, err = push.Decode(cb.out[1].payload)
	require.NoError(t, err)
	require.Equal(t, reconcile.PushStatus{Status: mbc.ConnectionStatus{Connected: true}}, ev)
}

func TestMirrorSkipsWhileOffline(t *testing.T) {
	cb := &captureBroker{}
	NewMirror(cb).Publish(mbc.Event{Type: mbc.EventLog, Payload: mbc.LogEntry{Message: "x"}})
	require.Empty(t, cb.out)
}

func TestMirrorStatusOnConnect(t *testing.T) {
	cb := &captureBroker{online: true}
	fn := NewMirror(cb).StatusOnConnect(func() mbc.ConnectionStatus { return mbc.ConnectionStatus{Connecting: true} })
	req, err := fn()
	require.NoError(t, err)
	require.Equal(t, "mbc/status", req.Topic)
	require.True(t, req.Retain)
	require.Equal(t, mbc.ConnectionStatus{Connecting: true}, req.Payload)
}
