package reconcile

import (
	"slices"

	"github.com/fisaks/mbconsole/internal/address"
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/mbc"
)

// Reduce applies ev to s. The returned commands are to be executed after the
// new state is published; their completions come back as events.
func Reduce(s State, ev Event) (State, []Command) {
	if s.Locked {
		return s, nil
	}

	switch e := ev.(type) {

	/* ===== Connection status ===== */

	case PushStatus:
		return observe(s, e.Status)
	case ConnectAcked:
		return observe(s, e.Status)
	case StatusFetched:
		return observe(s, e.Status)
	case DisconnectAcked:
		next, cmds := observe(s, e.Status)
		if e.Reconnect {
			cmds = append(cmds, Connect{})
		}
		return next, cmds

	/* ===== Remote data ===== */

	case PushData:
		s.Result = &e.Result
	case PushError:
		s.Result = &e.Result
	case ReadCompleted:
		s.Result = &e.Result
	case PushLog:
		s.Logs = s.Logs.Append(e.Entry)
	case PushStats:
		s.Stats = e.Stats
	case StatsFetched:
		s.Stats = e.Stats
	case VersionFetched:
		s.Version = e.Version
	case SerialDevicesFetched:
		s.SerialDevices = slices.Clone(e.Devices)

	/* ===== Configuration ===== */

	case ConfigFetched:
		cfg := e.Config.Clone()
		s.Config, s.Invocation = &cfg, e.Invocation
	case ConfigSaved:
		cfg := e.Config.Clone()
		s.Config, s.Invocation = &cfg, e.Invocation
		if e.Reconnect {
			return s, []Command{Disconnect{Reconnect: true}}
		}
	case ConfigSubmitted:
		return s, []Command{SaveConfig{Config: e.Config.Clone(), Reconnect: s.Conn.Phase != Offline}}
	case DecoderUpdated:
		return tweak(s, func(c *config.Remote) { c.Decoders = c.Decoders.Put(e.Descriptor) })
	case AddressBaseSet:
		return tweak(s, func(c *config.Remote) { c.AddressBase = e.Base })
	case AddressFormatSet:
		return tweak(s, func(c *config.Remote) { c.AddressFormat = e.Base })
	case ValueBaseSet:
		return tweak(s, func(c *config.Remote) { c.ValueBase = e.Base })

	/* ===== Failures ===== */

	case RequestFailed:
		s.Notice = e.Message
		if e.Op == (Connect{}).Op() {
			s.Pending = nil
		}
	case Unauthorized:
		s.Locked = true
		s.Pending = nil
		s.Notice = NoticeLocked

	/* ===== Operator ===== */

	case Started:
		return s, []Command{FetchConfig{}, FetchStats{}, FetchVersion{}, FetchStatus{}}
	case AddressEdited:
		s.AddressText = e.Text
		_, err := address.ParseRegister(e.Text)
		s.AddressErr = errText(err)
	case QuantityEdited:
		s.QuantityText = e.Text
		_, err := address.ParseQuantity(e.Text)
		s.QuantityErr = errText(err)
	case KindSelected:
		s.Kind = e.Kind
	case ReadRequested:
		return requestRead(s)
	case ConnectRequested:
		return s, []Command{Connect{}}
	case DisconnectRequested:
		return s, []Command{Disconnect{}}
	case AutoConnectSet:
		s.AutoConnect = e.On
	case ColumnsSet:
		if e.N > 0 {
			s.Columns = e.N
		}
	case LogsToggled:
		s.ShowLogs = !s.ShowLogs
	case SerialDevicesRequested:
		return s, []Command{FetchSerialDevices{}}
	case StatusRefreshRequested:
		return s, []Command{FetchStatus{}}
	case StatsRefreshRequested:
		return s, []Command{FetchStats{}}
	}
	return s, nil
}

// observe applies a reported status. A pending read fires on the first
// Online observation only, because the slot is emptied by firing it.
func observe(s State, st mbc.ConnectionStatus) (State, []Command) {
	s.Conn = Connection{Phase: PhaseOf(st), LastError: st.LastError}

	switch s.Conn.Phase {
	case Online:
		s.Conn.LastError = ""
		if s.Pending != nil {
			req := *s.Pending
			s.Pending = nil
			return s, []Command{Read{Request: req}}
		}
	case Offline:
		s.Pending = nil
	}
	return s, nil
}

func requestRead(s State) (State, []Command) {
	addr, aerr := address.ParseRegister(s.AddressText)
	qty, qerr := address.ParseQuantity(s.QuantityText)
	s.AddressErr, s.QuantityErr = errText(aerr), errText(qerr)
	if aerr != nil || qerr != nil {
		return s, nil
	}
	if s.Config == nil {
		s.Notice = NoticeNoConfig
		return s, nil
	}

	req := mbc.ReadRequest{Kind: s.Kind, Address: addr, Quantity: qty, UnitID: s.Config.UnitID}
	switch {
	case s.Conn.Phase == Online:
		s.Notice = ""
		return s, []Command{Read{Request: req}}
	case s.AutoConnect:
		s.Notice = ""
		s.Pending = &req
		return s, []Command{Connect{}}
	default:
		s.Notice = NoticeNotConnected
		return s, nil
	}
}

// tweak saves a display-only configuration change. It never reconnects.
func tweak(s State, edit func(*config.Remote)) (State, []Command) {
	if s.Config == nil {
		s.Notice = NoticeNoConfig
		return s, nil
	}
	next := s.Config.Clone()
	edit(&next)
	return s, []Command{SaveConfig{Config: next, Reconnect: false}}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
