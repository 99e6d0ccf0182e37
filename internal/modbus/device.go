package modbus

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/goburrow/modbus"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/logging"
)

const (
	MaxBitsPerRead      = 2000
	MaxRegistersPerRead = 125
)

// Device is one open connection to a Modbus bus. Implementations are not
// safe for concurrent use.
type Device interface {
	SetUnitID(id uint8)
	ReadCoils(addr, qty uint16) ([]bool, error)
	ReadDiscreteInputs(addr, qty uint16) ([]bool, error)
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)
	Close() error
}

type ModbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// DeviceClient is a Device on top of a goburrow TCP or RTU handler. Reads
// larger than one PDU allows are split and stitched back together.
type DeviceClient struct {
	handler ModbusHandler // This is an interface satisfied by both RTU and TCP handlers
	client  modbus.Client
	target  string
}

// Dial opens the bus described by cfg.
func Dial(cfg config.Remote) (Device, error) {
	var (
		handler ModbusHandler
		target  string
	)
	switch cfg.Protocol {
	case config.ProtocolRTU:
		h := modbus.NewRTUClientHandler(cfg.Serial.Device)
		h.BaudRate = int(cfg.Serial.Speed)
		h.DataBits = int(cfg.Serial.DataBits)
		h.Parity = config.SerialParity(cfg.Serial.Parity)
		h.StopBits = int(cfg.Serial.StopBits)
		h.Timeout = cfg.Timeout()
		h.SlaveId = cfg.UnitID
		h.Logger = logging.WrapSlog("bus", cfg.Serial.Device)
		handler, target = h, "rtu://"+cfg.Serial.Device
	case config.ProtocolTCP:
		h := modbus.NewTCPClientHandler(cfg.TCP.Addr())
		h.Timeout = cfg.Timeout()
		h.SlaveId = cfg.UnitID
		h.Logger = logging.WrapSlog("bus", cfg.TCP.Addr())
		handler, target = h, "tcp://"+cfg.TCP.Addr()
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", target, err)
	}
	return &DeviceClient{handler: handler, client: modbus.NewClient(handler), target: target}, nil
}

func (m *DeviceClient) SetUnitID(id uint8) {
	switch h := m.handler.(type) {
	case *modbus.RTUClientHandler:
		h.SlaveId = id
	case *modbus.TCPClientHandler:
		h.SlaveId = id
	default:
		logging.Error("Unknown Modbus handler type", "type", fmt.Sprintf("%T", h))
	}
}

func (m *DeviceClient) Close() error { return m.handler.Close() }

// ===== FC1: Coils =====
func (m *DeviceClient) ReadCoils(addr, qty uint16) ([]bool, error) {
	return m.readBits(addr, qty, m.client.ReadCoils)
}

// ===== FC2: Discrete Inputs =====
func (m *DeviceClient) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	return m.readBits(addr, qty, m.client.ReadDiscreteInputs)
}

// ===== FC3: Holding Registers =====
func (m *DeviceClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return m.readWords(addr, qty, m.client.ReadHoldingRegisters)
}

// ===== FC4: Input Registers =====
func (m *DeviceClient) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return m.readWords(addr, qty, m.client.ReadInputRegisters)
}

func (m *DeviceClient) readBits(start, count uint16, readFn func(addr, qty uint16) ([]byte, error)) ([]bool, error) {
	out := make([]bool, 0, count)
	var firstErr error
	forEachChunk(start, count, MaxBitsPerRead, func(addr, qty uint16) bool {
		data, err := readFn(addr, qty)
		if err != nil {
			logging.Debug("read bits failed", "target", m.target, "addr", addr, "qty", qty, "error", err)
			firstErr = err
			return false // stop on first failure
		}
		bits, err := UnpackBits(data, qty)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, bits...)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (m *DeviceClient) readWords(start, count uint16, readFn func(addr, qty uint16) ([]byte, error)) ([]uint16, error) {
	out := make([]uint16, 0, count)
	var firstErr error
	forEachChunk(start, count, MaxRegistersPerRead, func(addr, qty uint16) bool {
		data, err := readFn(addr, qty)
		if err != nil {
			logging.Debug("read regs failed", "target", m.target, "addr", addr, "qty", qty, "error", err)
			firstErr = err
			return false // stop on first failure
		}
		words, err := UnpackRegisters(data, qty)
		if err != nil {
			firstErr = err
			return false
		}
		out = append(out, words...)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// UnpackBits expands a packed coil response, LSB first within each byte.
func UnpackBits(data []byte, qty uint16) ([]bool, error) {
	if len(data)*8 < int(qty) {
		return nil, fmt.Errorf("short bit response: %d bytes for %d bits", len(data), qty)
	}
	out := make([]bool, qty)
	for i := range out {
		out[i] = data[i/8]&(1<<(uint(i)%8)) != 0
	}
	return out, nil
}

// UnpackRegisters splits a big-endian register response into words.
func UnpackRegisters(data []byte, qty uint16) ([]uint16, error) {
	if len(data) < int(qty)*2 {
		return nil, fmt.Errorf("short register response: %d bytes for %d registers", len(data), qty)
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out, nil
}

// forEachChunk splits [start, start+total) into chunks of size <= chunkSize.
// The callback returns false to abort early; true to continue.
func forEachChunk(start, total, chunkSize uint16, fn func(addr, qty uint16) bool) {
	if total == 0 || chunkSize == 0 {
		return
	}
	left := total
	addr := start
	for left > 0 {
		step := min(left, chunkSize)
		if !fn(addr, step) {
			return
		}
		addr += step
		left -= step
	}
}

// IsConnectionError reports errors that mean the link itself is gone, as
// opposed to a device exception.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "use of closed network connection")
}
