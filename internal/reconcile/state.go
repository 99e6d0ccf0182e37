// Package reconcile keeps the console's view of a remote Modbus service
// consistent with what the service reports. Reduce is a pure function; an
// engine feeds it events in arrival order and executes the commands it
// returns.
package reconcile

import (
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/mbc"
)

type Phase int

const (
	Offline Phase = iota
	Connecting
	Online
)

func (p Phase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	default:
		return "offline"
	}
}

// PhaseOf maps a reported status to a phase. Connected wins over connecting.
func PhaseOf(st mbc.ConnectionStatus) Phase {
	switch {
	case st.Connected:
		return Online
	case st.Connecting:
		return Connecting
	default:
		return Offline
	}
}

type Connection struct {
	Phase     Phase
	LastError string
}

const (
	NoticeNotConnected = "not connected"
	NoticeNoConfig     = "remote configuration not loaded yet"
	NoticeLocked       = "session expired or token rejected: restart with a valid token"
)

// State is owned by a single writer. Pointer and slice fields are replaced,
// never mutated in place, so a copy handed to observers stays valid.
type State struct {
	Conn    Connection
	Pending *mbc.ReadRequest
	Result  *mbc.ReadResult
	Stats   mbc.Stats
	Logs    mbc.LogRing

	Config        *config.Remote
	Invocation    string
	Version       string
	SerialDevices []string

	Kind         mbc.ReadKind
	AddressText  string
	QuantityText string
	AddressErr   string
	QuantityErr  string
	AutoConnect  bool
	Columns      int
	ShowLogs     bool

	Notice string
	Locked bool
}

func NewState(logLimit int) State {
	return State{
		Logs:         mbc.NewLogRing(logLimit),
		Kind:         mbc.HoldingRegisters,
		AddressText:  "0",
		QuantityText: "10",
		AutoConnect:  true,
		Columns:      8,
	}
}

// RemoteConfig returns the loaded configuration or the service defaults.
func (s State) RemoteConfig() config.Remote {
	if s.Config != nil {
		return *s.Config
	}
	return config.DefaultRemote()
}

func (s State) Layout() decode.Layout {
	return s.RemoteConfig().Layout(s.Columns)
}

// Rows renders the current result with the current decoder set.
func (s State) Rows() []decode.Row {
	return decode.Render(s.Result, s.RemoteConfig().Decoders, s.Layout())
}
