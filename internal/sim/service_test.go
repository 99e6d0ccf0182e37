package sim

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/modbus"
)

// fakeDevice serves reads from fixed tables and remembers the last request.
type fakeDevice struct {
	mu       sync.Mutex
	unit     uint8
	lastAddr uint16
	err      error
	closed   bool
}

func (d *fakeDevice) SetUnitID(id uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unit = id
}

func (d *fakeDevice) words(addr, qty uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAddr = addr
	if d.err != nil {
		return nil, d.err
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = addr + uint16(i)
	}
	return out, nil
}

func (d *fakeDevice) bits(addr, qty uint16) ([]bool, error) {
	w, err := d.words(addr, qty)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(w))
	for i, v := range w {
		out[i] = v%2 == 1
	}
	return out, nil
}

func (d *fakeDevice) ReadCoils(addr, qty uint16) ([]bool, error)          { return d.bits(addr, qty) }
func (d *fakeDevice) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) { return d.bits(addr, qty) }
func (d *fakeDevice) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return d.words(addr, qty)
}
func (d *fakeDevice) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return d.words(addr, qty)
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type recorder struct {
	mu     sync.Mutex
	events []mbc.Event
}

func (r *recorder) Publish(ev mbc.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(t mbc.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func newTestService(cfg config.Remote, dial Dialer) (*Service, *recorder) {
	svc := NewService(cfg, dial)
	svc.RetryMin = time.Millisecond
	svc.RetryMax = 4 * time.Millisecond
	rec := &recorder{}
	svc.AddSink(rec)
	return svc, rec
}

func dialTo(dev *fakeDevice) Dialer {
	return func(config.Remote) (modbus.Device, error) { return dev, nil }
}

func connected(svc *Service) func() bool {
	return func() bool { return svc.Status().Connected }
}

func TestServiceConnectAndRead(t *testing.T) {
	dev := &fakeDevice{}
	cfg := config.DefaultRemote()
	cfg.AddressBase = 1
	cfg.UnitID = 7
	svc, rec := newTestService(cfg, dialTo(dev))

	require.NoError(t, svc.Connect())
	require.Eventually(t, connected(svc), time.Second, time.Millisecond)

	res, err := svc.Read(mbc.ReadRequest{Kind: mbc.HoldingRegisters, Address: 10, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, []uint16{9, 10, 11}, res.RegValues)
	require.Equal(t, uint16(10), res.Address, "result echoes the requested address")
	require.Equal(t, uint16(9), dev.lastAddr)
	require.Equal(t, uint8(7), dev.unit)
	require.Equal(t, uint64(1), svc.Stats().ReadCount)

	_, err = svc.Read(mbc.ReadRequest{Kind: mbc.Coils, Address: 0, Quantity: 2, UnitID: 3})
	require.NoError(t, err)
	require.Equal(t, uint8(3), dev.unit)

	require.True(t, rec.has(mbc.EventData))
	require.True(t, rec.has(mbc.EventStats))
	require.True(t, rec.has(mbc.EventStatus))

	logs := svc.Logs()
	require.NotEmpty(t, logs)
	var sawTx bool
	for _, e := range logs {
		if e.Direction == "tx" && strings.Contains(e.Message, "fc=03 addr=0x0009 qty=0x0003 unit=0x07") {
			sawTx = true
		}
	}
	require.True(t, sawTx)
}

func TestServiceReadWhileDisconnected(t *testing.T) {
	svc, rec := newTestService(config.DefaultRemote(), dialTo(&fakeDevice{}))

	res, err := svc.Read(mbc.ReadRequest{Kind: mbc.HoldingRegisters, Quantity: 1})
	require.ErrorIs(t, err, ErrNotConnected)
	require.Equal(t, ErrNotConnected.Error(), res.ErrorMessage)
	require.Equal(t, uint64(1), svc.Stats().ErrorCount)
	require.True(t, rec.has(mbc.EventError))
}

func TestServiceConnectLoopRetries(t *testing.T) {
	dev := &fakeDevice{}
	var attempts atomic.Int32
	svc, _ := newTestService(config.DefaultRemote(), func(config.Remote) (modbus.Device, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("dial tcp 127.0.0.1:502: connection refused")
		}
		return dev, nil
	})

	require.NoError(t, svc.Connect())
	require.True(t, svc.Status().Connecting)
	require.Eventually(t, connected(svc), time.Second, time.Millisecond)
	require.Equal(t, int32(3), attempts.Load())
	require.Empty(t, svc.Status().LastError)

	// a second connect is a no-op
	require.NoError(t, svc.Connect())
	require.Equal(t, int32(3), attempts.Load())
}

func TestServiceDisconnectStopsLoop(t *testing.T) {
	var attempts atomic.Int32
	svc, _ := newTestService(config.DefaultRemote(), func(config.Remote) (modbus.Device, error) {
		attempts.Add(1)
		return nil, errors.New("no route to host")
	})

	require.NoError(t, svc.Connect())
	require.Eventually(t, func() bool { return attempts.Load() >= 2 }, time.Second, time.Millisecond)
	require.Equal(t, "no route to host", svc.Status().LastError)

	require.NoError(t, svc.Disconnect())
	st := svc.Status()
	require.False(t, st.Connecting)
	require.False(t, st.Connected)
	require.Empty(t, st.LastError)

	n := attempts.Load()
	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, attempts.Load(), n+1)
}

func TestServiceReconnectsOnLinkFailure(t *testing.T) {
	broken := &fakeDevice{err: io.EOF}
	healthy := &fakeDevice{}
	var dials atomic.Int32
	svc, _ := newTestService(config.DefaultRemote(), func(config.Remote) (modbus.Device, error) {
		if dials.Add(1) == 1 {
			return broken, nil
		}
		return healthy, nil
	})

	require.NoError(t, svc.Connect())
	require.Eventually(t, connected(svc), time.Second, time.Millisecond)

	_, err := svc.Read(mbc.ReadRequest{Kind: mbc.InputRegisters, Quantity: 2})
	require.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return dials.Load() == 2 && svc.Status().Connected }, time.Second, time.Millisecond)
	require.True(t, broken.isClosed())

	res, err := svc.Read(mbc.ReadRequest{Kind: mbc.InputRegisters, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, res.RegValues, 2)
}

func TestServiceDeviceExceptionKeepsConnection(t *testing.T) {
	dev := &fakeDevice{err: errors.New("modbus: exception '2' (illegal data address)")}
	svc, _ := newTestService(config.DefaultRemote(), dialTo(dev))
	require.NoError(t, svc.Connect())
	require.Eventually(t, connected(svc), time.Second, time.Millisecond)

	res, err := svc.Read(mbc.ReadRequest{Kind: mbc.HoldingRegisters, Quantity: 1})
	require.Error(t, err)
	require.True(t, res.Failed())
	require.True(t, svc.Status().Connected)
}

func TestApplyAddressBase(t *testing.T) {
	require.Equal(t, uint16(5), applyAddressBase(5, 0))
	require.Equal(t, uint16(4), applyAddressBase(5, 1))
	require.Equal(t, uint16(0), applyAddressBase(0, 1))
}
