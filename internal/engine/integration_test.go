package engine_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/engine"
	"github.com/fisaks/mbconsole/internal/modbus"
	"github.com/fisaks/mbconsole/internal/push"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/session"
	"github.com/fisaks/mbconsole/internal/sim"
)

// countingDevice answers every register read with addr, addr+1, ...
type countingDevice struct{}

func (countingDevice) SetUnitID(uint8) {}
func (countingDevice) ReadCoils(addr, qty uint16) ([]bool, error) {
	return make([]bool, qty), nil
}
func (countingDevice) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	return make([]bool, qty), nil
}
func (d countingDevice) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	out := make([]uint16, qty)
	for i := range out {
		out[i] = addr + uint16(i)
	}
	return out, nil
}
func (d countingDevice) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return d.ReadHoldingRegisters(addr, qty)
}
func (countingDevice) Close() error { return nil }

func startService(t *testing.T, token string) *httptest.Server {
	t.Helper()
	cfg := config.DefaultRemote()
	cfg.Token = token
	svc := sim.NewService(cfg, func(config.Remote) (modbus.Device, error) { return countingDevice{}, nil })
	svc.RetryMin, svc.RetryMax = time.Millisecond, time.Millisecond

	hub := sim.NewHub(svc.Greeting)
	svc.AddSink(hub)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(sim.NewHandler(svc, hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

// startConsole wires the console side the way cmd/mbconsole does.
func startConsole(t *testing.T, baseURL, token string) *engine.Engine {
	t.Helper()
	client := api.NewClient(baseURL, token, 2*time.Second)
	gate := session.NewGate()
	eng := engine.New(engine.NewAPIExecutor(client, gate), reconcile.NewState(0))
	gate.OnLock(func() { eng.Post(reconcile.Unauthorized{}) })

	pushURL, err := client.PushURL()
	require.NoError(t, err)
	ws := push.NewWebSocket(pushURL, gate)
	ws.RedialMin, ws.RedialMax = 5*time.Millisecond, 20*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { _ = eng.Run(ctx); done <- struct{}{} }()
	go func() { _ = ws.Run(ctx, eng); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
		eng.Wait()
	})
	return eng
}

func TestConsoleReadsThroughService(t *testing.T) {
	srv := startService(t, "tok")
	eng := startConsole(t, srv.URL, "tok")

	eng.Post(reconcile.Started{})
	require.Eventually(t, func() bool { return eng.State().Config != nil }, 2*time.Second, 5*time.Millisecond)

	eng.Post(reconcile.AddressEdited{Text: "0x10"})
	eng.Post(reconcile.QuantityEdited{Text: "4"})
	eng.Post(reconcile.ReadRequested{})

	require.Eventually(t, func() bool {
		r := eng.State().Result
		return r != nil && !r.Failed()
	}, 2*time.Second, 5*time.Millisecond)

	s := eng.State()
	require.Equal(t, []uint16{0x10, 0x11, 0x12, 0x13}, s.Result.RegValues)
	require.Equal(t, reconcile.Online, s.Conn.Phase)
	require.Nil(t, s.Pending)
	rows := s.Rows()
	require.NotEmpty(t, rows)
	require.Equal(t, "16", rows[0].Label)
}

func TestConsoleLocksOnRejectedToken(t *testing.T) {
	srv := startService(t, "tok")
	eng := startConsole(t, srv.URL, "bad")

	eng.Post(reconcile.Started{})
	require.Eventually(t, func() bool { return eng.State().Locked }, 2*time.Second, 5*time.Millisecond)

	eng.Post(reconcile.ReadRequested{})
	eng.Wait()
	s := eng.State()
	require.Equal(t, reconcile.NoticeLocked, s.Notice)
	require.Nil(t, s.Config)
	require.Nil(t, s.Result)
}
