// Package repl turns typed console commands into reconcile events.
package repl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/reconcile"
)

// Action is work the console does locally after posting the events.
type Action int

const (
	ActionNone Action = iota
	ActionShow
	ActionConfig
	ActionHelp
	ActionQuit
)

var ErrUnknownCommand = errors.New("unknown command")

const Help = `commands:
  read [kind] [addr] [qty]   read, optionally changing the fields first
  addr <n|0xN>               set the start address
  qty <n>                    set the quantity
  kind <co|di|hr|ir|1..4>    select the read kind
  connect | disconnect
  auto on|off                connect automatically on read
  cols <n>                   table columns
  decoder <type> <opts>      e.g. "decoder f32 le,lf" or "decoder u32 off"
  format addr|value dec|hex  address or value formatting
  base 0|1                   address base
  logs                       toggle the service log view
  status | stats | devices   refresh from the service
  config                     show the remote configuration
  config set key=value ...   protocol host port unit timeout device speed databits parity stopbits
  show                       print everything
  help | quit`

// Parse maps one input line to events. The state is read to fill in values
// a command leaves implicit; it is never modified.
func Parse(line string, s reconcile.State) ([]reconcile.Event, Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ActionNone, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "read", "r":
		return parseRead(args)
	case "addr", "address":
		if len(args) != 1 {
			return usage("addr <n|0xN>")
		}
		return one(reconcile.AddressEdited{Text: args[0]})
	case "qty", "quantity":
		if len(args) != 1 {
			return usage("qty <n>")
		}
		return one(reconcile.QuantityEdited{Text: args[0]})
	case "kind":
		if len(args) != 1 {
			return usage("kind <co|di|hr|ir>")
		}
		k, err := mbc.ParseReadKind(args[0])
		if err != nil {
			return nil, ActionNone, err
		}
		return one(reconcile.KindSelected{Kind: k})
	case "connect":
		return one(reconcile.ConnectRequested{})
	case "disconnect":
		return one(reconcile.DisconnectRequested{})
	case "auto":
		if len(args) != 1 {
			return usage("auto on|off")
		}
		on, err := onOff(args[0])
		if err != nil {
			return nil, ActionNone, err
		}
		return one(reconcile.AutoConnectSet{On: on})
	case "cols", "columns":
		if len(args) != 1 {
			return usage("cols <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return nil, ActionNone, fmt.Errorf("columns must be a positive number")
		}
		return one(reconcile.ColumnsSet{N: n})
	case "decoder", "dec":
		return parseDecoder(args, s)
	case "format", "fmt":
		return parseFormat(args)
	case "base":
		if len(args) != 1 || (args[0] != "0" && args[0] != "1") {
			return usage("base 0|1")
		}
		return one(reconcile.AddressBaseSet{Base: int(args[0][0] - '0')})
	case "logs", "log":
		return one(reconcile.LogsToggled{})
	case "status":
		return one(reconcile.StatusRefreshRequested{})
	case "stats":
		return one(reconcile.StatsRefreshRequested{})
	case "devices":
		return one(reconcile.SerialDevicesRequested{})
	case "config", "cfg":
		if len(args) == 0 {
			return nil, ActionConfig, nil
		}
		if strings.ToLower(args[0]) != "set" || len(args) < 2 {
			return usage("config set key=value ...")
		}
		return parseConfigSet(args[1:], s)
	case "show":
		return nil, ActionShow, nil
	case "help", "?", "h":
		return nil, ActionHelp, nil
	case "quit", "exit", "q":
		return nil, ActionQuit, nil
	}
	return nil, ActionNone, fmt.Errorf("%w %q (try help)", ErrUnknownCommand, fields[0])
}

func one(ev reconcile.Event) ([]reconcile.Event, Action, error) {
	return []reconcile.Event{ev}, ActionNone, nil
}

func usage(u string) ([]reconcile.Event, Action, error) {
	return nil, ActionNone, fmt.Errorf("usage: %s", u)
}

// parseRead accepts the fields in order; a leading kind is optional.
func parseRead(args []string) ([]reconcile.Event, Action, error) {
	var out []reconcile.Event
	if len(args) > 0 {
		if k, err := mbc.ParseReadKind(args[0]); err == nil && !isNumber(args[0]) {
			out = append(out, reconcile.KindSelected{Kind: k})
			args = args[1:]
		}
	}
	if len(args) > 2 {
		return usage("read [kind] [addr] [qty]")
	}
	if len(args) > 0 {
		out = append(out, reconcile.AddressEdited{Text: args[0]})
	}
	if len(args) > 1 {
		out = append(out, reconcile.QuantityEdited{Text: args[1]})
	}
	return append(out, reconcile.ReadRequested{}), ActionNone, nil
}

func parseDecoder(args []string, s reconcile.State) ([]reconcile.Event, Action, error) {
	if len(args) < 1 {
		return usage("decoder <type> [be|le,hf|lf,on|off]")
	}
	t, err := decode.ParseType(args[0])
	if err != nil {
		return nil, ActionNone, err
	}
	d, err := decode.ParseSpec(strings.Join(args[1:], ","), s.RemoteConfig().Decoders.Get(t))
	if err != nil {
		return nil, ActionNone, err
	}
	return one(reconcile.DecoderUpdated{Descriptor: d})
}

func parseFormat(args []string) ([]reconcile.Event, Action, error) {
	if len(args) != 2 {
		return usage("format addr|value dec|hex")
	}
	b, err := decode.ParseBase(strings.ToLower(args[1]))
	if err != nil {
		return nil, ActionNone, err
	}
	switch strings.ToLower(args[0]) {
	case "addr", "address":
		return one(reconcile.AddressFormatSet{Base: b})
	case "value", "values", "val":
		return one(reconcile.ValueBaseSet{Base: b})
	}
	return usage("format addr|value dec|hex")
}

// parseConfigSet edits a copy of the loaded remote configuration.
func parseConfigSet(pairs []string, s reconcile.State) ([]reconcile.Event, Action, error) {
	if s.Config == nil {
		return nil, ActionNone, errors.New(reconcile.NoticeNoConfig)
	}
	cfg := s.Config.Clone()
	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok || val == "" {
			return nil, ActionNone, fmt.Errorf("expected key=value, got %q", p)
		}
		if err := setField(&cfg, strings.ToLower(key), val); err != nil {
			return nil, ActionNone, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, ActionNone, err
	}
	return one(reconcile.ConfigSubmitted{Config: cfg})
}

func setField(cfg *config.Remote, key, val string) error {
	num := func(bits int) (uint64, error) {
		n, err := strconv.ParseUint(val, 10, bits)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a valid number", key, val)
		}
		return n, nil
	}
	switch key {
	case "protocol":
		cfg.Protocol = config.Protocol(strings.ToLower(val))
	case "host":
		cfg.TCP.Host = val
	case "port":
		n, err := num(16)
		if err != nil {
			return err
		}
		cfg.TCP.Port = int(n)
	case "unit", "unitid", "unit-id":
		n, err := num(8)
		if err != nil {
			return err
		}
		cfg.UnitID = uint8(n)
	case "timeout":
		n, err := num(32)
		if err != nil {
			return err
		}
		cfg.TimeoutMs = int64(n)
	case "device", "serial":
		cfg.Serial.Device = val
	case "speed", "baud":
		n, err := num(32)
		if err != nil {
			return err
		}
		cfg.Serial.Speed = uint(n)
	case "databits":
		n, err := num(8)
		if err != nil {
			return err
		}
		cfg.Serial.DataBits = uint(n)
	case "parity":
		cfg.Serial.Parity = strings.ToLower(val)
	case "stopbits":
		n, err := num(8)
		if err != nil {
			return err
		}
		cfg.Serial.StopBits = uint(n)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func onOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func isNumber(s string) bool {
	_, err := strconv.ParseUint(s, 0, 32)
	return err == nil
}
