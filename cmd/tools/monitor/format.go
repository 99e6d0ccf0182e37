package main

import (
	"fmt"
	"strings"

	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/push"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/view"
)

type formatter struct {
	layout decode.Layout
	set    decode.Set
}

// message turns one MQTT message into printable lines. Payloads that are not
// service envelopes are printed raw.
func (f *formatter) message(topic string, payload []byte) []string {
	if strings.HasSuffix(topic, "/status") {
		return []string{statusLine(topic, payload)}
	}
	ev, err := push.Decode(payload)
	if err != nil {
		return []string{fmt.Sprintf("%s %s (error: %v)", topic, string(payload), err)}
	}
	return f.event(topic, ev)
}

func (f *formatter) event(topic string, ev reconcile.Event) []string {
	switch e := ev.(type) {
	case reconcile.PushData:
		r := e.Result
		head := fmt.Sprintf("%s data %s addr=%s qty=%d %dms", topic, r.Kind,
			f.layout.AddressFormat.Format(uint32(r.Address)), r.Quantity, r.LatencyMs)
		return append([]string{head}, view.Lines(decode.Render(&r, f.set, f.layout))...)
	case reconcile.PushError:
		r := e.Result
		return []string{fmt.Sprintf("%s error %s addr=%s qty=%d: %s", topic, r.Kind,
			f.layout.AddressFormat.Format(uint32(r.Address)), r.Quantity, r.ErrorMessage)}
	case reconcile.PushStatus:
		return []string{topic + " status " + statusText(e.Status)}
	case reconcile.PushLog:
		return []string{fmt.Sprintf("%s log %s", topic, e.Entry)}
	case reconcile.PushStats:
		return []string{fmt.Sprintf("%s stats reads=%d errors=%d last=%dms", topic,
			e.Stats.ReadCount, e.Stats.ErrorCount, e.Stats.LastLatencyMs)}
	}
	return []string{fmt.Sprintf("%s %T", topic, ev)}
}
