// monitor follows the events a service mirrors to MQTT and prints them,
// rendering read results the same way the console does.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/messaging"
)

func main() {
	var brokerURL, prefix, decoders string
	var cols int
	var hex bool
	flag.StringVar(&brokerURL, "broker", "tcp://localhost:1883", "MQTT broker address")
	flag.StringVar(&prefix, "prefix", "mbc", "topic prefix the service mirrors to")
	flag.IntVar(&cols, "cols", 8, "values per row")
	flag.BoolVar(&hex, "hex", false, "show addresses and values in hex")
	flag.StringVar(&decoders, "decode", "", "comma separated decoders to show (u16,i16,u32,i32,f32)")
	flag.Parse()

	f, err := newFormatter(cols, hex, decoders)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	broker := messaging.NewMsgBroker(messaging.BrokerConfig{
		BrokerURL:        brokerURL,
		ClientName:       "monitor",
		TopicPrefix:      prefix,
		ConnectTimeout:   10 * time.Second,
		SubscribeTimeout: 5 * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := broker.Connect(ctx); err != nil {
		logging.Fatal("connect failed", "broker", brokerURL, "error", err)
	}
	topic := broker.Topic("#")
	fmt.Printf("Connected to MQTT broker %s, subscribing to %s...\n", brokerURL, topic)

	_, err = broker.Subscribe(ctx, topic, messaging.AtMostOnce, func(_ context.Context, topic string, payload []byte) {
		for _, line := range f.message(topic, payload) {
			fmt.Println(line)
		}
	})
	if err != nil {
		logging.Fatal("subscribe failed", "topic", topic, "error", err)
	}

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = broker.Close(closeCtx)
}

func newFormatter(cols int, hex bool, decoders string) (*formatter, error) {
	if cols < 1 {
		return nil, fmt.Errorf("cols must be at least 1")
	}
	base := decode.Dec
	if hex {
		base = decode.Hex
	}
	set := decode.DefaultSet()
	for _, name := range strings.Split(decoders, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := decode.ParseType(name)
		if err != nil {
			return nil, err
		}
		d := set.Get(t)
		d.Enabled = true
		set = set.Put(d)
	}
	return &formatter{
		layout: decode.Layout{AddressFormat: base, ValueBase: base, Columns: cols},
		set:    set,
	}, nil
}

// statusLine formats the retained status a service keeps on <prefix>/status.
func statusLine(topic string, payload []byte) string {
	var st mbc.ConnectionStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Sprintf("%s %s (error: %v)", topic, string(payload), err)
	}
	return topic + " " + statusText(st)
}

func statusText(st mbc.ConnectionStatus) string {
	state := "offline"
	switch {
	case st.Connected:
		state = "online"
	case st.Connecting:
		state = "connecting"
	}
	if st.LastError != "" {
		state += " (" + st.LastError + ")"
	}
	return state
}
