// Package sim is a stand-in for the remote Modbus service: it owns the bus
// connection, answers the HTTP API and fans events out to WebSocket and MQTT
// listeners.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/modbus"
)

var ErrNotConnected = errors.New("modbus client not connected")

// Dialer opens the bus for cfg.
type Dialer func(cfg config.Remote) (modbus.Device, error)

// Publisher receives every event the service emits. Publish must not block.
type Publisher interface {
	Publish(ev mbc.Event)
}

type Service struct {
	dial Dialer

	// RetryMin and RetryMax bound the connect loop backoff.
	RetryMin time.Duration
	RetryMax time.Duration

	mu         sync.Mutex
	cfg        config.Remote
	dev        modbus.Device
	connecting bool
	stop       chan struct{}
	lastErr    string
	logs       mbc.LogRing
	stats      mbc.Stats
	sinks      []Publisher

	bus sync.Mutex // one request on the wire at a time
}

func NewService(cfg config.Remote, dial Dialer) *Service {
	if dial == nil {
		dial = modbus.Dial
	}
	return &Service{
		dial:     dial,
		cfg:      cfg,
		logs:     mbc.NewLogRing(mbc.DefaultLogLimit),
		RetryMin: 500 * time.Millisecond,
		RetryMax: 5 * time.Second,
	}
}

// AddSink registers p for every future event.
func (s *Service) AddSink(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, p)
}

func (s *Service) Config() config.Remote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// UpdateConfig replaces the configuration. An open connection keeps its
// settings until the next connect.
func (s *Service) UpdateConfig(cfg config.Remote) {
	s.mu.Lock()
	s.cfg = cfg.Clone()
	s.mu.Unlock()
	s.logInfo("config updated: " + connectionSummary(cfg))
}

func (s *Service) Stats() mbc.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) Logs() []mbc.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs.Entries()
}

func (s *Service) Status() mbc.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mbc.ConnectionStatus{
		Connected:  s.dev != nil,
		Connecting: s.connecting,
		LastError:  s.lastErr,
	}
}

// Greeting is what a newly attached push client receives first.
func (s *Service) Greeting() []mbc.Event {
	return []mbc.Event{
		{Type: mbc.EventStatus, Payload: s.Status()},
		{Type: mbc.EventStats, Payload: s.Stats()},
	}
}

// Connect starts the connect loop unless the service is already connected
// or connecting. It returns immediately.
func (s *Service) Connect() error {
	s.mu.Lock()
	switch {
	case s.dev != nil:
		s.mu.Unlock()
		s.logInfo("connect requested: already connected")
		return nil
	case s.connecting:
		s.mu.Unlock()
		s.logInfo("connect requested: already connecting")
		return nil
	}
	stop := make(chan struct{})
	s.stop = stop
	s.connecting = true
	s.mu.Unlock()

	s.logInfo("connect requested: starting loop")
	s.emitStatus()
	go s.connectLoop(stop)
	return nil
}

// Disconnect stops the connect loop and closes the bus.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.connecting = false
	dev := s.dev
	s.dev = nil
	s.lastErr = ""
	s.mu.Unlock()

	s.logInfo("disconnect requested")
	if stop != nil {
		close(stop)
	}
	var err error
	if dev != nil {
		err = dev.Close()
	}
	s.emitStatus()
	return err
}

// Read performs one read. A device or transport failure is returned both as
// the error and in the result's ErrorMessage.
func (s *Service) Read(req mbc.ReadRequest) (mbc.ReadResult, error) {
	start := time.Now()
	result := mbc.ReadResult{Kind: req.Kind, Address: req.Address, Quantity: req.Quantity}

	s.mu.Lock()
	dev := s.dev
	cfg := s.cfg
	s.mu.Unlock()

	if dev == nil {
		return s.fail(result, start, ErrNotConnected)
	}
	if req.Quantity == 0 {
		return s.fail(result, start, errors.New("quantity must be >= 1"))
	}

	unit := req.UnitID
	if unit == 0 {
		unit = cfg.UnitID
	}
	addr := applyAddressBase(req.Address, cfg.AddressBase)

	s.bus.Lock()
	dev.SetUnitID(unit)
	s.log(mbc.LogEntry{Direction: "tx", Message: fmt.Sprintf("tx %s fc=%s addr=0x%04x qty=0x%04x unit=0x%02x",
		req.Kind, req.Kind.FunctionCode(), addr, req.Quantity, unit)})

	var err error
	switch req.Kind {
	case mbc.Coils:
		result.BoolValues, err = dev.ReadCoils(addr, req.Quantity)
	case mbc.DiscreteInputs:
		result.BoolValues, err = dev.ReadDiscreteInputs(addr, req.Quantity)
	case mbc.HoldingRegisters:
		result.RegValues, err = dev.ReadHoldingRegisters(addr, req.Quantity)
	case mbc.InputRegisters:
		result.RegValues, err = dev.ReadInputRegisters(addr, req.Quantity)
	default:
		err = fmt.Errorf("unsupported read kind: %s", req.Kind)
	}
	s.bus.Unlock()

	if err != nil {
		return s.fail(result, start, err)
	}

	result.CompletedAt = time.Now()
	result.LatencyMs = time.Since(start).Milliseconds()
	s.updateStats(result.LatencyMs, false)
	s.log(mbc.LogEntry{Direction: "rx", Message: fmt.Sprintf("rx %s fc=%s addr=0x%04x qty=0x%04x latency=%dms",
		req.Kind, req.Kind.FunctionCode(), result.Address, result.Quantity, result.LatencyMs)})
	s.emit(mbc.Event{Type: mbc.EventData, Payload: result})
	return result, nil
}

func (s *Service) fail(result mbc.ReadResult, start time.Time, err error) (mbc.ReadResult, error) {
	result.CompletedAt = time.Now()
	result.LatencyMs = time.Since(start).Milliseconds()
	result.ErrorMessage = err.Error()

	s.updateStats(result.LatencyMs, true)
	s.logError(err.Error())
	s.emit(mbc.Event{Type: mbc.EventError, Payload: result})
	s.maybeReconnect(err)
	return result, err
}

func (s *Service) updateStats(latencyMs int64, failed bool) {
	s.mu.Lock()
	if failed {
		s.stats.ErrorCount++
	} else {
		s.stats.ReadCount++
	}
	s.stats.LastLatencyMs = latencyMs
	stats := s.stats
	s.mu.Unlock()
	s.emit(mbc.Event{Type: mbc.EventStats, Payload: stats})
}

func (s *Service) connectLoop(stop <-chan struct{}) {
	backoff := s.RetryMin
	for attempt := 1; ; attempt++ {
		select {
		case <-stop:
			s.logInfo("connect stopped")
			return
		default:
		}

		cfg := s.Config()
		s.logInfo(fmt.Sprintf("connect attempt %d: %s", attempt, connectionSummary(cfg)))
		dev, err := s.dial(cfg)
		if err == nil {
			s.mu.Lock()
			if s.stop != stop {
				// disconnected while dialing
				s.mu.Unlock()
				_ = dev.Close()
				return
			}
			s.dev = dev
			s.connecting = false
			s.lastErr = ""
			s.mu.Unlock()
			s.logInfo("connect succeeded")
			s.emitStatus()
			return
		}

		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logError(fmt.Sprintf("connect failed: %v", err))
		s.emitStatus()

		timer := time.NewTimer(backoff)
		select {
		case <-stop:
			timer.Stop()
			s.logInfo("connect stopped")
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.RetryMax)
	}
}

// maybeReconnect drops a connection whose link failed and starts over.
func (s *Service) maybeReconnect(err error) {
	if !modbus.IsConnectionError(err) {
		return
	}
	s.mu.Lock()
	connected := s.dev != nil
	connecting := s.connecting
	s.mu.Unlock()
	if !connected || connecting {
		return
	}
	s.logInfo("connection lost; reconnecting")
	go func() {
		_ = s.Disconnect()
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.emitStatus()
		_ = s.Connect()
	}()
}

func (s *Service) emitStatus() {
	st := s.Status()
	s.logInfo(fmt.Sprintf("status: connected=%t connecting=%t lastError=%q", st.Connected, st.Connecting, st.LastError))
	s.emit(mbc.Event{Type: mbc.EventStatus, Payload: st})
}

func (s *Service) emit(ev mbc.Event) {
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()
	for _, p := range sinks {
		p.Publish(ev)
	}
}

func (s *Service) log(entry mbc.LogEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	s.mu.Lock()
	s.logs = s.logs.Append(entry)
	s.mu.Unlock()
	logging.Debug("bus log", "direction", entry.Direction, "message", entry.Message)
	s.emit(mbc.Event{Type: mbc.EventLog, Payload: entry})
}

func (s *Service) logInfo(msg string)  { s.log(mbc.LogEntry{Direction: "sys", Message: msg}) }
func (s *Service) logError(msg string) { s.log(mbc.LogEntry{Direction: "err", Message: msg}) }

// applyAddressBase converts an operator address to the zero based wire
// address.
func applyAddressBase(addr uint16, base int) uint16 {
	if base == 1 && addr > 0 {
		return addr - 1
	}
	return addr
}

func connectionSummary(cfg config.Remote) string {
	switch cfg.Protocol {
	case config.ProtocolRTU:
		return fmt.Sprintf("rtu://%s speed=%d data=%d stop=%d parity=%s timeout=%dms",
			cfg.Serial.Device, cfg.Serial.Speed, cfg.Serial.DataBits, cfg.Serial.StopBits, cfg.Serial.Parity, cfg.TimeoutMs)
	case config.ProtocolTCP:
		return fmt.Sprintf("tcp://%s timeout=%dms", cfg.TCP.Addr(), cfg.TimeoutMs)
	}
	return fmt.Sprintf("unknown protocol: %s", cfg.Protocol)
}
