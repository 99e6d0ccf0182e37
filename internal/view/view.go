// Package view renders console state to a terminal.
package view

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/reconcile"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

const cellWidth = 9

// Printer writes state snapshots. OnEvent is meant to be registered as an
// engine observer and prints only what changed.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	phase   reconcile.Phase
	notice  string
	shown   *mbc.ReadResult
	started bool
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) OnEvent(s reconcile.State, ev reconcile.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Locked {
		// only the re-authorization notice from here on
		if s.Notice != p.notice {
			p.notice = s.Notice
			p.noticeLine(s)
		}
		return
	}
	if !p.started || s.Conn.Phase != p.phase {
		p.started = true
		p.phase = s.Conn.Phase
		p.status(s)
	}
	if s.Notice != p.notice {
		p.notice = s.Notice
		if s.Notice != "" {
			p.noticeLine(s)
		}
	}

	switch e := ev.(type) {
	case reconcile.ReadCompleted, reconcile.PushData, reconcile.PushError:
		if s.Result != nil && !sameResult(p.shown, s.Result) {
			p.shown = s.Result
			p.table(s)
		}
	case reconcile.PushLog:
		if s.ShowLogs {
			fmt.Fprintln(p.out, logLine(e.Entry))
		}
	case reconcile.ConfigFetched, reconcile.ConfigSaved:
		p.config(s)
	case reconcile.SerialDevicesFetched:
		p.devices(s)
	case reconcile.StatsFetched:
		p.stats(s)
	case reconcile.VersionFetched:
		fmt.Fprintf(p.out, "%s %s\n", faint("service version"), s.Version)
	case reconcile.ColumnsSet, reconcile.AddressFormatSet, reconcile.ValueBaseSet, reconcile.AddressBaseSet:
		if s.Result != nil {
			p.table(s)
		}
	case reconcile.LogsToggled:
		if s.ShowLogs {
			p.logs(s, 20)
		} else {
			fmt.Fprintln(p.out, faint("logs hidden"))
		}
	}
}

// Show prints the whole state: status, stats, input fields and the table.
// A locked session shows the notice alone.
func (p *Printer) Show(s reconcile.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Locked {
		p.noticeLine(s)
		return
	}
	p.status(s)
	p.stats(s)
	p.inputs(s)
	if s.Notice != "" {
		p.noticeLine(s)
	}
	if s.Result != nil {
		p.table(s)
	}
	if s.ShowLogs {
		p.logs(s, 20)
	}
}

func (p *Printer) Config(s reconcile.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Locked {
		p.noticeLine(s)
		return
	}
	p.config(s)
}

// Println prints a plain message line.
func (p *Printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, a...)
}

// Errorln prints a message in the error color.
func (p *Printer) Errorln(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, red(msg))
}

func (p *Printer) status(s reconcile.State) {
	var phase string
	switch s.Conn.Phase {
	case reconcile.Online:
		phase = green("● online")
	case reconcile.Connecting:
		phase = yellow("◌ connecting")
	default:
		phase = red("○ offline")
	}
	line := phase
	if s.Config != nil {
		line += "  " + target(*s.Config) + fmt.Sprintf("  unit %d", s.Config.UnitID)
	}
	if s.Conn.LastError != "" {
		line += "  " + red(s.Conn.LastError)
	}
	fmt.Fprintln(p.out, line)
}

func (p *Printer) stats(s reconcile.State) {
	fmt.Fprintf(p.out, "%s %d  %s %d  %s %dms\n",
		faint("reads"), s.Stats.ReadCount,
		faint("errors"), s.Stats.ErrorCount,
		faint("latency"), s.Stats.LastLatencyMs)
}

func (p *Printer) inputs(s reconcile.State) {
	field := func(name, text, errText string) string {
		if errText != "" {
			return fmt.Sprintf("%s=%s %s", name, text, red("("+errText+")"))
		}
		return fmt.Sprintf("%s=%s", name, text)
	}
	auto := "off"
	if s.AutoConnect {
		auto = "on"
	}
	fmt.Fprintf(p.out, "%s %s  %s  %s  auto-connect=%s  cols=%d\n",
		faint("read"), s.Kind,
		field("addr", s.AddressText, s.AddressErr),
		field("qty", s.QuantityText, s.QuantityErr),
		auto, s.Columns)
}

func (p *Printer) noticeLine(s reconcile.State) {
	if s.Locked {
		fmt.Fprintln(p.out, red(bold(s.Notice)))
		return
	}
	fmt.Fprintln(p.out, yellow(s.Notice))
}

// table prints the result grid, or the remote error when the read failed.
func (p *Printer) table(s reconcile.State) {
	r := s.Result
	if r.Failed() {
		fmt.Fprintf(p.out, "%s %s %s\n", red("read failed:"), r.ErrorMessage, faint(fmt.Sprintf("(%dms)", r.LatencyMs)))
		return
	}
	layout := s.Layout()
	fmt.Fprintf(p.out, "%s  %s  %s\n",
		bold(fmt.Sprintf("%s fc=%s qty=%d", r.Kind, r.Kind.FunctionCode(), r.Quantity)),
		faint(layout.Legend()),
		faint(fmt.Sprintf("%dms", r.LatencyMs)))
	for _, line := range Lines(s.Rows()) {
		fmt.Fprintln(p.out, line)
	}
}

func (p *Printer) logs(s reconcile.State, n int) {
	entries := s.Logs.Tail(n)
	if len(entries) == 0 {
		fmt.Fprintln(p.out, faint("no log entries"))
		return
	}
	for _, e := range entries {
		fmt.Fprintln(p.out, logLine(e))
	}
}

func (p *Printer) config(s reconcile.State) {
	if s.Config == nil {
		fmt.Fprintln(p.out, yellow(reconcile.NoticeNoConfig))
		return
	}
	c := s.Config
	fmt.Fprintf(p.out, "%s %s  unit %d  timeout %dms\n", faint("config"), target(*c), c.UnitID, c.TimeoutMs)
	var dec []string
	for _, d := range c.Decoders.Enabled() {
		dec = append(dec, d.String())
	}
	if len(dec) == 0 {
		dec = []string{"none"}
	}
	fmt.Fprintf(p.out, "%s %s\n", faint("decoders"), strings.Join(dec, ", "))
	if s.Invocation != "" {
		fmt.Fprintf(p.out, "%s %s\n", faint("invocation"), s.Invocation)
	}
}

func (p *Printer) devices(s reconcile.State) {
	if len(s.SerialDevices) == 0 {
		fmt.Fprintln(p.out, faint("no serial devices found"))
		return
	}
	for _, d := range s.SerialDevices {
		fmt.Fprintln(p.out, "  "+d)
	}
}

// Lines lays rows out as fixed width text. A cell spanning n columns takes
// the width of n cells. Widths count runes.
func Lines(rows []decode.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		label := row.Label
		if row.Decoded() {
			label = "  " + label
		}
		fmt.Fprintf(&b, "%-10s", label)
		for _, c := range row.Cells {
			span := max(c.Span, 1)
			w := span*cellWidth - 1
			text := c.Text
			n := utf8.RuneCountInString(text)
			if n > w {
				text = string([]rune(text)[:w-1]) + "…"
				n = w
			}
			b.WriteString(" ")
			b.WriteString(strings.Repeat(" ", w-n))
			b.WriteString(text)
		}
		line := strings.TrimRight(b.String(), " ")
		if row.Decoded() {
			line = cyan(line)
		}
		out = append(out, line)
	}
	return out
}

func logLine(e mbc.LogEntry) string {
	line := e.String()
	switch e.Direction {
	case "err":
		return red(line)
	case "tx", "rx":
		return line
	}
	return faint(line)
}

func target(c config.Remote) string {
	if c.Protocol == config.ProtocolRTU {
		return fmt.Sprintf("rtu://%s %d %d%s%d", c.Serial.Device, c.Serial.Speed,
			c.Serial.DataBits, config.SerialParity(c.Serial.Parity), c.Serial.StopBits)
	}
	return "tcp://" + c.TCP.Addr()
}

func sameResult(a, b *mbc.ReadResult) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Kind == b.Kind && a.Address == b.Address && a.Quantity == b.Quantity &&
		a.CompletedAt.Equal(b.CompletedAt) && a.ErrorMessage == b.ErrorMessage
}
