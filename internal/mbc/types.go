// Package mbc holds the wire types shared by the console and the service
// simulator. JSON names follow the remote service API.
package mbc

import (
	"fmt"
	"strings"
	"time"
)

type ReadKind string

const (
	Coils            ReadKind = "coils"
	DiscreteInputs   ReadKind = "discrete_inputs"
	HoldingRegisters ReadKind = "holding_registers"
	InputRegisters   ReadKind = "input_registers"
)

var ReadKinds = []ReadKind{Coils, DiscreteInputs, HoldingRegisters, InputRegisters}

// ParseReadKind accepts the kind name, a short alias or the function code.
func ParseReadKind(s string) (ReadKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "01", "coils", "coil", "co":
		return Coils, nil
	case "2", "02", "discrete_inputs", "discrete", "di":
		return DiscreteInputs, nil
	case "3", "03", "holding_registers", "holding", "hr":
		return HoldingRegisters, nil
	case "4", "04", "input_registers", "input", "ir":
		return InputRegisters, nil
	}
	return "", fmt.Errorf("unknown read kind %q (want one of %v)", s, ReadKinds)
}

// FunctionCode is the two digit Modbus function code used in log lines.
func (k ReadKind) FunctionCode() string {
	switch k {
	case Coils:
		return "01"
	case DiscreteInputs:
		return "02"
	case HoldingRegisters:
		return "03"
	case InputRegisters:
		return "04"
	}
	return "??"
}

// Bits reports whether the kind returns single bit values.
func (k ReadKind) Bits() bool { return k == Coils || k == DiscreteInputs }

type ReadRequest struct {
	Kind     ReadKind `json:"kind"`
	Address  uint16   `json:"address"`
	Quantity uint16   `json:"quantity"`
	UnitID   uint8    `json:"unitId"`
}

// ReadResult carries either BoolValues or RegValues. A non-empty
// ErrorMessage marks a read the remote service attempted and the device
// rejected.
type ReadResult struct {
	Kind         ReadKind  `json:"kind"`
	Address      uint16    `json:"address"`
	Quantity     uint16    `json:"quantity"`
	BoolValues   []bool    `json:"boolValues,omitempty"`
	RegValues    []uint16  `json:"regValues,omitempty"`
	LatencyMs    int64     `json:"latencyMs"`
	CompletedAt  time.Time `json:"completedAt"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

func (r ReadResult) Failed() bool { return r.ErrorMessage != "" }

type Stats struct {
	ReadCount     uint64 `json:"readCount"`
	ErrorCount    uint64 `json:"errorCount"`
	LastLatencyMs int64  `json:"lastLatencyMs"`
}

type ConnectionStatus struct {
	Connected  bool   `json:"connected"`
	Connecting bool   `json:"connecting"`
	LastError  string `json:"lastError,omitempty"`
}

type LogEntry struct {
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"` // "tx", "rx", "err", "sys"
	Message   string    `json:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05.000"), e.Direction, e.Message)
}

type EventType string

const (
	EventData   EventType = "data"
	EventError  EventType = "error"
	EventLog    EventType = "log"
	EventStats  EventType = "stats"
	EventStatus EventType = "status"
)

// Event is the push envelope sent by the service over the WebSocket and
// mirrored on MQTT.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}
