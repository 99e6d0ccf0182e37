package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/decode"
)

type options struct {
	configPath string

	serial    string
	speed     uint
	dataBits  uint
	stopBits  uint
	parity    string
	host      string
	port      int
	unitID    uint
	timeoutMs int64
	addrBase  uint
	addrFmt   string
	valueBase string
	decoders  map[decode.Type]*string

	listen  string
	noToken bool
	token   string

	mqttURL    string
	mqttPrefix string

	slave    string
	rtuSlave string
	version  bool
}

func addFlags(cmd *cobra.Command, o *options) {
	def := config.DefaultRemote()
	f := cmd.Flags()

	f.StringVar(&o.configPath, "config", "", "service config file (json or yaml); flags override it")

	f.StringVar(&o.serial, "serial", def.Serial.Device, "serial device path (enables rtu mode)")
	f.UintVar(&o.speed, "speed", def.Serial.Speed, "serial baud rate")
	f.UintVar(&o.dataBits, "databits", def.Serial.DataBits, "serial data bits")
	f.UintVar(&o.stopBits, "stopbits", def.Serial.StopBits, "serial stop bits")
	f.StringVar(&o.parity, "parity", def.Serial.Parity, "serial parity (none, even, odd)")
	f.StringVar(&o.host, "host", def.TCP.Host, "modbus tcp host")
	f.IntVar(&o.port, "port", def.TCP.Port, "modbus tcp port")
	f.UintVar(&o.unitID, "unit-id", uint(def.UnitID), "default unit id")
	f.Int64Var(&o.timeoutMs, "timeout", def.TimeoutMs, "device timeout (ms)")
	f.UintVar(&o.addrBase, "address-base", uint(def.AddressBase), "address base (0 or 1)")
	f.StringVar(&o.addrFmt, "address-format", def.AddressFormat.String(), "address format (dec or hex)")
	f.StringVar(&o.valueBase, "value-base", def.ValueBase.String(), "value format (dec or hex)")

	o.decoders = make(map[decode.Type]*string, len(decode.Types))
	for _, t := range decode.Types {
		o.decoders[t] = f.String(shortName(t), "", fmt.Sprintf("enable %s decoder (be|le[,hf|lf] or off)", t))
	}

	f.StringVar(&o.listen, "listen", def.ListenAddr, "http listen address")
	f.BoolVar(&o.noToken, "no-token", false, "do not require an access token")
	f.StringVar(&o.token, "token", "", "access token (generated when empty)")

	f.StringVar(&o.mqttURL, "mqtt-url", "", "mirror events to this MQTT broker (e.g. tcp://127.0.0.1:1883)")
	f.StringVar(&o.mqttPrefix, "mqtt-prefix", "mbc", "MQTT topic prefix")

	f.StringVar(&o.slave, "slave", "", "run an in-process Modbus TCP slave on this address and read from it")
	f.StringVar(&o.rtuSlave, "rtu-slave", "", "answer as an RTU slave on this serial device")
	f.BoolVar(&o.version, "version", false, "print version and exit")
}

func shortName(t decode.Type) string {
	switch t {
	case decode.Uint16:
		return "u16"
	case decode.Int16:
		return "i16"
	case decode.Uint32:
		return "u32"
	case decode.Int32:
		return "i32"
	}
	return "f32"
}

// apply builds the service configuration: defaults, then the config file,
// then every flag the operator set explicitly.
func (o *options) apply(cmd *cobra.Command) (config.Remote, error) {
	cfg := config.DefaultRemote()
	if o.configPath != "" {
		loaded, err := config.LoadRemote(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	changed := flags.Changed
	serialMode := changed("serial") || changed("speed") || changed("databits") || changed("stopbits") || changed("parity")
	tcpMode := changed("host") || changed("port")
	if serialMode && tcpMode {
		return cfg, fmt.Errorf("serial flags cannot be combined with --host/--port")
	}
	switch {
	case serialMode:
		cfg.Protocol = config.ProtocolRTU
	case tcpMode:
		cfg.Protocol = config.ProtocolTCP
	}

	if changed("serial") {
		cfg.Serial.Device = o.serial
	}
	if changed("speed") {
		cfg.Serial.Speed = o.speed
	}
	if changed("databits") {
		cfg.Serial.DataBits = o.dataBits
	}
	if changed("stopbits") {
		cfg.Serial.StopBits = o.stopBits
	}
	if changed("parity") {
		cfg.Serial.Parity = o.parity
	}
	if changed("host") {
		cfg.TCP.Host = o.host
	}
	if changed("port") {
		cfg.TCP.Port = o.port
	}
	if changed("unit-id") {
		if o.unitID > 247 {
			return cfg, fmt.Errorf("unit-id must be 0..247")
		}
		cfg.UnitID = uint8(o.unitID)
	}
	if changed("timeout") {
		cfg.TimeoutMs = o.timeoutMs
	}
	if changed("address-base") {
		if o.addrBase > 1 {
			return cfg, fmt.Errorf("address-base must be 0 or 1")
		}
		cfg.AddressBase = int(o.addrBase)
	}
	if changed("address-format") {
		b, err := decode.ParseBase(o.addrFmt)
		if err != nil {
			return cfg, fmt.Errorf("address-format: %w", err)
		}
		cfg.AddressFormat = b
	}
	if changed("value-base") {
		b, err := decode.ParseBase(o.valueBase)
		if err != nil {
			return cfg, fmt.Errorf("value-base: %w", err)
		}
		cfg.ValueBase = b
	}
	for _, t := range decode.Types {
		if !changed(shortName(t)) {
			continue
		}
		spec := *o.decoders[t]
		if spec == "" {
			return cfg, fmt.Errorf("--%s requires a value", shortName(t))
		}
		d, err := decode.ParseSpec(spec, cfg.Decoders.Get(t))
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", t, err)
		}
		cfg.Decoders = cfg.Decoders.Put(d)
	}

	if changed("listen") {
		cfg.ListenAddr = o.listen
	}
	if o.noToken {
		cfg.RequireToken = false
	}
	if o.token != "" {
		cfg.Token = o.token
	}

	// reading from the in-process slave unless a target was given
	if o.slave != "" && !serialMode && !tcpMode {
		host, port, err := net.SplitHostPort(o.slave)
		if err != nil {
			return cfg, fmt.Errorf("slave: %w", err)
		}
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return cfg, fmt.Errorf("slave port: %w", err)
		}
		cfg.Protocol = config.ProtocolTCP
		cfg.TCP = config.TCPConfig{Host: host, Port: p}
	}

	return cfg, cfg.Validate()
}
