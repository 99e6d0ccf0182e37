package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/goburrow/serial"
	tcpslave "github.com/tbrandon/mbserver"
	rtuslave "github.com/womat/mbserver"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/logging"
)

// StartTCPSlave runs an in-process Modbus TCP slave on addr with a seeded
// register map, so the service has something to read without hardware.
func StartTCPSlave(addr string) (*tcpslave.Server, error) {
	srv := tcpslave.NewServer()
	seed(srv.Coils, srv.DiscreteInputs, srv.HoldingRegisters, srv.InputRegisters)
	if err := srv.ListenTCP(addr); err != nil {
		return nil, fmt.Errorf("listen tcp slave %s: %w", addr, err)
	}
	logging.Info("Modbus TCP slave listening", "addr", addr)
	return srv, nil
}

// StartRTUSlave answers as the given unit ids on a serial port. Close the
// returned func to release the port.
func StartRTUSlave(sc config.SerialConfig, units ...uint8) (func() error, error) {
	s := rtuslave.NewServer()
	if len(units) == 0 {
		units = []uint8{1}
	}
	for _, id := range units {
		// unit 1 exists on a fresh server
		if id != 1 {
			if err := s.NewDevice(id); err != nil {
				return nil, fmt.Errorf("rtu slave unit %d: %w", id, err)
			}
		}
		dev := s.Devices[id]
		seed(dev.Coils, dev.DiscreteInputs, dev.HoldingRegisters, dev.InputRegisters)
	}

	port, err := serial.Open(&serial.Config{
		Address:  sc.Device,
		BaudRate: int(sc.Speed),
		DataBits: int(sc.DataBits),
		StopBits: int(sc.StopBits),
		Parity:   config.SerialParity(sc.Parity),
		Timeout:  2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", sc.Device, err)
	}
	if err := s.ListenRTU(port); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("listen rtu slave %s: %w", sc.Device, err)
	}
	logging.Info("Modbus RTU slave ready", "port", sc.Device, "units", units)
	return port.Close, nil
}

// seed fills a register map with recognisable values: holding registers
// count up, input registers hold pi as a float32 followed by a few signed
// values, coils and discrete inputs alternate.
func seed(coils, discrete []byte, holding, input []uint16) {
	for i := range holding {
		holding[i] = uint16(i)
	}
	for i := range coils {
		coils[i] = byte(i % 2)
	}
	for i := range discrete {
		discrete[i] = byte((i + 1) % 2)
	}
	if len(input) >= 4 {
		bits := math.Float32bits(math.Pi)
		input[0] = uint16(bits >> 16)
		input[1] = uint16(bits)
		input[2] = 0xFFFF // -1 as int16
		input[3] = 0x8000
	}
}
