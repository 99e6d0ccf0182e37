// Package push turns the service's asynchronous notifications into reconcile
// events. Two transports carry the same JSON envelope: the service's own
// WebSocket and an optional MQTT mirror.
package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/reconcile"
)

var ErrUnknownType = errors.New("unknown push event type")

// Sink receives decoded events; the engine implements it.
type Sink interface {
	Post(ev reconcile.Event)
}

type envelope struct {
	Type    mbc.EventType   `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one envelope. Unknown types return ErrUnknownType and are
// meant to be skipped.
func Decode(raw []byte) (reconcile.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case mbc.EventData:
		var r mbc.ReadResult
		if err := unmarshal(env, &r); err != nil {
			return nil, err
		}
		return reconcile.PushData{Result: r}, nil
	case mbc.EventError:
		var r mbc.ReadResult
		if err := unmarshal(env, &r); err != nil {
			return nil, err
		}
		return reconcile.PushError{Result: r}, nil
	case mbc.EventStatus:
		var st mbc.ConnectionStatus
		if err := unmarshal(env, &st); err != nil {
			return nil, err
		}
		return reconcile.PushStatus{Status: st}, nil
	case mbc.EventLog:
		var e mbc.LogEntry
		if err := unmarshal(env, &e); err != nil {
			return nil, err
		}
		return reconcile.PushLog{Entry: e}, nil
	case mbc.EventStats:
		var s mbc.Stats
		if err := unmarshal(env, &s); err != nil {
			return nil, err
		}
		return reconcile.PushStats{Stats: s}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
}

func unmarshal(env envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s event without payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return nil
}
