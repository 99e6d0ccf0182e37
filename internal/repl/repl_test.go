package repl

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/view"
)

func init() { color.NoColor = true }

func withConfig() reconcile.State {
	s := reconcile.NewState(0)
	cfg := config.DefaultRemote()
	s.Config = &cfg
	return s
}

func TestParseRead(t *testing.T) {
	s := reconcile.NewState(0)
	cases := []struct {
		line string
		want []reconcile.Event
	}{
		{"read", []reconcile.Event{reconcile.ReadRequested{}}},
		{"read 0x10", []reconcile.Event{reconcile.AddressEdited{Text: "0x10"}, reconcile.ReadRequested{}}},
		{"read 1 4", []reconcile.Event{
			reconcile.AddressEdited{Text: "1"}, reconcile.QuantityEdited{Text: "4"}, reconcile.ReadRequested{},
		}},
		{"r co 5 2", []reconcile.Event{
			reconcile.KindSelected{Kind: mbc.Coils},
			reconcile.AddressEdited{Text: "5"}, reconcile.QuantityEdited{Text: "2"}, reconcile.ReadRequested{},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, action, err := Parse(tc.line, s)
			require.NoError(t, err)
			require.Equal(t, ActionNone, action)
			require.Equal(t, tc.want, got)
		})
	}

	_, _, err := Parse("read hr 1 2 3", s)
	require.Error(t, err)
}

func TestParseSimpleCommands(t *testing.T) {
	s := reconcile.NewState(0)
	cases := map[string]reconcile.Event{
		"addr 0x20":        reconcile.AddressEdited{Text: "0x20"},
		"qty 8":            reconcile.QuantityEdited{Text: "8"},
		"kind di":          reconcile.KindSelected{Kind: mbc.DiscreteInputs},
		"kind 4":           reconcile.KindSelected{Kind: mbc.InputRegisters},
		"connect":          reconcile.ConnectRequested{},
		"disconnect":       reconcile.DisconnectRequested{},
		"auto off":         reconcile.AutoConnectSet{On: false},
		"auto on":          reconcile.AutoConnectSet{On: true},
		"cols 16":          reconcile.ColumnsSet{N: 16},
		"format addr hex":  reconcile.AddressFormatSet{Base: decode.Hex},
		"format value dec": reconcile.ValueBaseSet{Base: decode.Dec},
		"base 1":           reconcile.AddressBaseSet{Base: 1},
		"logs":             reconcile.LogsToggled{},
		"status":           reconcile.StatusRefreshRequested{},
		"stats":            reconcile.StatsRefreshRequested{},
		"devices":          reconcile.SerialDevicesRequested{},
	}
	for line, want := range cases {
		got, _, err := Parse(line, s)
		require.NoError(t, err, line)
		require.Equal(t, []reconcile.Event{want}, got, line)
	}
}

func TestParseErrors(t *testing.T) {
	s := reconcile.NewState(0)
	for _, line := range []string{"frobnicate", "cols 0", "cols x", "auto maybe", "kind xx", "base 2", "format addr oct", "decoder f64"} {
		_, _, err := Parse(line, s)
		require.Error(t, err, line)
	}
	_, _, err := Parse("nope", s)
	require.ErrorIs(t, err, ErrUnknownCommand)

	events, action, err := Parse("   ", s)
	require.NoError(t, err)
	require.Nil(t, events)
	require.Equal(t, ActionNone, action)
}

func TestParseDecoderStartsFromCurrent(t *testing.T) {
	s := withConfig()
	s.Config.Decoders = s.Config.Decoders.Put(decode.Descriptor{
		Type: decode.Float32, Endianness: decode.LittleEndian, WordOrder: decode.HighFirst, Enabled: false,
	})

	got, _, err := Parse("decoder f32 lf", s)
	require.NoError(t, err)
	require.Equal(t, []reconcile.Event{reconcile.DecoderUpdated{Descriptor: decode.Descriptor{
		Type: decode.Float32, Endianness: decode.LittleEndian, WordOrder: decode.LowFirst, Enabled: true,
	}}}, got)

	got, _, err = Parse("decoder u32 off", s)
	require.NoError(t, err)
	require.False(t, got[0].(reconcile.DecoderUpdated).Descriptor.Enabled)
}

func TestParseConfigSet(t *testing.T) {
	_, _, err := Parse("config set port=1502", reconcile.NewState(0))
	require.EqualError(t, err, reconcile.NoticeNoConfig)

	s := withConfig()
	got, _, err := Parse("config set host=10.0.0.5 port=1502 unit=3", s)
	require.NoError(t, err)
	require.Len(t, got, 1)
	cfg := got[0].(reconcile.ConfigSubmitted).Config
	require.Equal(t, "10.0.0.5", cfg.TCP.Host)
	require.Equal(t, 1502, cfg.TCP.Port)
	require.Equal(t, uint8(3), cfg.UnitID)
	require.Equal(t, 502, s.Config.TCP.Port, "state is not modified")

	_, _, err = Parse("config set protocol=rtu parity=mark", s)
	require.ErrorContains(t, err, "serial.parity")
	_, _, err = Parse("config set colour=blue", s)
	require.ErrorContains(t, err, "unknown config key")
	_, _, err = Parse("config set port", s)
	require.Error(t, err)

	_, action, err := Parse("config", s)
	require.NoError(t, err)
	require.Equal(t, ActionConfig, action)
}

// fakeEngine applies events with the real reducer and drops commands.
type fakeEngine struct {
	mu     sync.Mutex
	state  reconcile.State
	posted []reconcile.Event
}

func (f *fakeEngine) Post(ev reconcile.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, ev)
	f.state, _ = reconcile.Reduce(f.state, ev)
}

func (f *fakeEngine) State() reconcile.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func TestConsoleRun(t *testing.T) {
	eng := &fakeEngine{state: withConfig()}
	var out bytes.Buffer
	in := strings.NewReader("addr 0x30\nbogus\nhelp\nshow\nquit\naddr 1\n")

	c := NewConsole(eng, in, view.NewPrinter(&out), nil)
	require.NoError(t, c.Run(context.Background()))

	require.Equal(t, []reconcile.Event{reconcile.AddressEdited{Text: "0x30"}}, eng.posted)
	text := out.String()
	require.Contains(t, text, `unknown command "bogus"`)
	require.Contains(t, text, "config set key=value")
	require.Contains(t, text, "addr=0x30")
}

func TestConsoleStopsAtEndOfInput(t *testing.T) {
	eng := &fakeEngine{state: reconcile.NewState(0)}
	var prompt bytes.Buffer
	c := NewConsole(eng, strings.NewReader("logs\n"), view.NewPrinter(&bytes.Buffer{}), &prompt)
	require.NoError(t, c.Run(context.Background()))
	require.True(t, eng.State().ShowLogs)
	require.Contains(t, prompt.String(), "mbc> ")
}
