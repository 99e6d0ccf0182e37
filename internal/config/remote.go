package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fisaks/mbconsole/internal/decode"
)

/* =========================
   Remote service configuration
   ========================= */

type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolRTU Protocol = "rtu"
)

type SerialConfig struct {
	Device   string `json:"device" yaml:"device"`
	Speed    uint   `json:"speed" yaml:"speed"`
	DataBits uint   `json:"dataBits" yaml:"dataBits"`
	Parity   string `json:"parity" yaml:"parity"` // none | even | odd
	StopBits uint   `json:"stopBits" yaml:"stopBits"`
}

type TCPConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (t TCPConfig) Addr() string { return fmt.Sprintf("%s:%d", t.Host, t.Port) }

// Remote is the configuration document the service exposes on /api/config.
type Remote struct {
	Protocol      Protocol     `json:"protocol" yaml:"protocol"`
	UnitID        uint8        `json:"unitId" yaml:"unitId"`
	TimeoutMs     int64        `json:"timeoutMs" yaml:"timeoutMs"`
	AddressBase   int          `json:"addressBase" yaml:"addressBase"`
	AddressFormat decode.Base  `json:"addressFormat" yaml:"addressFormat"`
	ValueBase     decode.Base  `json:"valueBase" yaml:"valueBase"`
	Serial        SerialConfig `json:"serial" yaml:"serial"`
	TCP           TCPConfig    `json:"tcp" yaml:"tcp"`
	Decoders      decode.Set   `json:"decoders" yaml:"decoders"`
	ListenAddr    string       `json:"listenAddr" yaml:"listenAddr"`
	RequireToken  bool         `json:"requireToken" yaml:"requireToken"`
	Token         string       `json:"token" yaml:"token"`
}

func DefaultRemote() Remote {
	return Remote{
		Protocol:      ProtocolTCP,
		UnitID:        1,
		TimeoutMs:     (1 * time.Second).Milliseconds(),
		AddressBase:   0,
		AddressFormat: decode.Dec,
		ValueBase:     decode.Dec,
		Serial: SerialConfig{
			Device:   "/dev/ttyUSB0",
			Speed:    9600,
			DataBits: 8,
			Parity:   "none",
			StopBits: 1,
		},
		TCP:          TCPConfig{Host: "127.0.0.1", Port: 502},
		Decoders:     decode.DefaultSet(),
		ListenAddr:   "0.0.0.0:8502",
		RequireToken: true,
	}
}

func (c Remote) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

// Clone copies c deeply enough that edits never reach the original.
func (c Remote) Clone() Remote {
	c.Decoders = slices.Clone(c.Decoders)
	return c
}

func (c Remote) Layout(columns int) decode.Layout {
	return decode.Layout{
		AddressBase:   c.AddressBase,
		AddressFormat: c.AddressFormat,
		ValueBase:     c.ValueBase,
		Columns:       columns,
	}
}

// Invocation is the simulator command line reproducing c, listing only
// values that differ from the defaults.
func (c Remote) Invocation() string {
	parts := []string{"mbc-sim"}
	defaults := DefaultRemote()
	if c.Protocol == ProtocolRTU {
		parts = append(parts, "--serial", c.Serial.Device)
		if c.Serial.Speed != defaults.Serial.Speed {
			parts = append(parts, "--speed", strconv.FormatUint(uint64(c.Serial.Speed), 10))
		}
		if c.Serial.DataBits != defaults.Serial.DataBits {
			parts = append(parts, "--databits", strconv.FormatUint(uint64(c.Serial.DataBits), 10))
		}
		if c.Serial.Parity != defaults.Serial.Parity {
			parts = append(parts, "--parity", c.Serial.Parity)
		}
		if c.Serial.StopBits != defaults.Serial.StopBits {
			parts = append(parts, "--stopbits", strconv.FormatUint(uint64(c.Serial.StopBits), 10))
		}
	} else {
		if c.TCP.Host != defaults.TCP.Host {
			parts = append(parts, "--host", c.TCP.Host)
		}
		if c.TCP.Port != defaults.TCP.Port {
			parts = append(parts, "--port", strconv.Itoa(c.TCP.Port))
		}
	}
	if c.UnitID != defaults.UnitID {
		parts = append(parts, "--unit-id", strconv.Itoa(int(c.UnitID)))
	}
	if c.TimeoutMs != defaults.TimeoutMs {
		parts = append(parts, "--timeout", strconv.FormatInt(c.TimeoutMs, 10))
	}
	if c.ListenAddr != defaults.ListenAddr {
		parts = append(parts, "--listen", c.ListenAddr)
	}
	if !c.RequireToken {
		parts = append(parts, "--no-token")
	}
	return strings.Join(parts, " ")
}

func (c Remote) Validate() error {
	var errs multiErr

	switch c.Protocol {
	case ProtocolTCP:
		if strings.TrimSpace(c.TCP.Host) == "" {
			errs.add("tcp.host is required for protocol=tcp")
		}
		if c.TCP.Port <= 0 || c.TCP.Port > 65535 {
			errs.add("tcp.port must be 1..65535")
		}
	case ProtocolRTU:
		if strings.TrimSpace(c.Serial.Device) == "" {
			errs.add("serial.device is required for protocol=rtu")
		}
		if c.Serial.Speed == 0 {
			errs.add("serial.speed must be > 0")
		}
		if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
			errs.add("serial.dataBits must be 5..8")
		}
		if !slices.Contains([]string{"none", "even", "odd"}, c.Serial.Parity) {
			errs.add("serial.parity must be one of none,even,odd")
		}
		if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
			errs.add("serial.stopBits must be 1 or 2")
		}
	default:
		errs.addf("protocol must be 'tcp' or 'rtu' (got %q)", c.Protocol)
	}

	if c.UnitID > 247 {
		errs.add("unitId must be 0..247")
	}
	if c.TimeoutMs <= 0 {
		errs.add("timeoutMs must be > 0")
	}
	if c.AddressBase != 0 && c.AddressBase != 1 {
		errs.add("addressBase must be 0 or 1")
	}
	if c.AddressFormat != decode.Dec && c.AddressFormat != decode.Hex {
		errs.add("addressFormat must be 10 or 16")
	}
	if c.ValueBase != decode.Dec && c.ValueBase != decode.Hex {
		errs.add("valueBase must be 10 or 16")
	}
	if err := c.Decoders.Validate(); err != nil {
		errs.add(err.Error())
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SerialParity maps the long parity names to the single letter form used by
// the serial libraries.
func SerialParity(p string) string {
	switch strings.ToLower(p) {
	case "even", "e":
		return "E"
	case "odd", "o":
		return "O"
	default:
		return "N"
	}
}
