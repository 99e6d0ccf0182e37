package reconcile

import (
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
	"github.com/fisaks/mbconsole/internal/mbc"
)

// Event is anything that can change State: a push notification, the
// completion of a command, or an operator action.
type Event interface{ event() }

/* ===== Push ===== */

type PushStatus struct{ Status mbc.ConnectionStatus }
type PushData struct{ Result mbc.ReadResult }
type PushError struct{ Result mbc.ReadResult }
type PushLog struct{ Entry mbc.LogEntry }
type PushStats struct{ Stats mbc.Stats }

/* ===== Command completions ===== */

type ConnectAcked struct{ Status mbc.ConnectionStatus }
type DisconnectAcked struct {
	Status    mbc.ConnectionStatus
	Reconnect bool
}
type StatusFetched struct{ Status mbc.ConnectionStatus }
type ConfigFetched struct {
	Config     config.Remote
	Invocation string
}
type ConfigSaved struct {
	Config     config.Remote
	Invocation string
	Reconnect  bool
}
type ReadCompleted struct{ Result mbc.ReadResult }
type StatsFetched struct{ Stats mbc.Stats }
type VersionFetched struct{ Version string }
type SerialDevicesFetched struct{ Devices []string }

// RequestFailed reports a command that did not reach a usable answer. Op is
// the command's Op().
type RequestFailed struct {
	Op      string
	Message string
}

// Unauthorized is posted once when the session gate locks.
type Unauthorized struct{}

/* ===== Operator ===== */

type Started struct{}
type AddressEdited struct{ Text string }
type QuantityEdited struct{ Text string }
type KindSelected struct{ Kind mbc.ReadKind }
type ReadRequested struct{}
type ConnectRequested struct{}
type DisconnectRequested struct{}
type AutoConnectSet struct{ On bool }
type ColumnsSet struct{ N int }
type ConfigSubmitted struct{ Config config.Remote }
type DecoderUpdated struct{ Descriptor decode.Descriptor }
type AddressBaseSet struct{ Base int }
type AddressFormatSet struct{ Base decode.Base }
type ValueBaseSet struct{ Base decode.Base }
type LogsToggled struct{}
type SerialDevicesRequested struct{}
type StatusRefreshRequested struct{}
type StatsRefreshRequested struct{}

func (PushStatus) event() {}
func (PushData) event()   {}
func (PushError) event()  {}
func (PushLog) event()    {}
func (PushStats) event()  {}

func (ConnectAcked) event()         {}
func (DisconnectAcked) event()      {}
func (StatusFetched) event()        {}
func (ConfigFetched) event()        {}
func (ConfigSaved) event()          {}
func (ReadCompleted) event()        {}
func (StatsFetched) event()         {}
func (VersionFetched) event()       {}
func (SerialDevicesFetched) event() {}
func (RequestFailed) event()        {}
func (Unauthorized) event()         {}

func (Started) event()                {}
func (AddressEdited) event()          {}
func (QuantityEdited) event()         {}
func (KindSelected) event()           {}
func (ReadRequested) event()          {}
func (ConnectRequested) event()       {}
func (DisconnectRequested) event()    {}
func (AutoConnectSet) event()         {}
func (ColumnsSet) event()             {}
func (ConfigSubmitted) event()        {}
func (DecoderUpdated) event()         {}
func (AddressBaseSet) event()         {}
func (AddressFormatSet) event()       {}
func (ValueBaseSet) event()           {}
func (LogsToggled) event()            {}
func (SerialDevicesRequested) event() {}
func (StatusRefreshRequested) event() {}
func (StatsRefreshRequested) event()  {}
