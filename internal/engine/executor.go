package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/session"
)

// APIExecutor runs commands against the remote service through the session
// gate. Requests are sent once; failures become RequestFailed events.
type APIExecutor struct {
	client *api.Client
	gate   *session.Gate
}

func NewAPIExecutor(client *api.Client, gate *session.Gate) *APIExecutor {
	return &APIExecutor{client: client, gate: gate}
}

func (x *APIExecutor) Execute(ctx context.Context, cmd reconcile.Command) reconcile.Event {
	var out reconcile.Event
	err := x.gate.Do(func() error {
		var err error
		out, err = x.call(ctx, cmd)
		return err
	})

	switch {
	case err == nil:
		return out
	case errors.Is(err, session.ErrLocked), errors.Is(err, api.ErrUnauthorized):
		// the gate's OnLock hook reports the lock
		logging.Debug("command dropped", "op", cmd.Op(), "error", err)
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		logging.Warn("command failed", "op", cmd.Op(), "error", err)
		return reconcile.RequestFailed{Op: cmd.Op(), Message: err.Error()}
	}
}

func (x *APIExecutor) call(ctx context.Context, cmd reconcile.Command) (reconcile.Event, error) {
	switch c := cmd.(type) {
	case reconcile.Connect:
		st, err := x.client.Connect(ctx)
		return reconcile.ConnectAcked{Status: st}, err
	case reconcile.Disconnect:
		st, err := x.client.Disconnect(ctx)
		return reconcile.DisconnectAcked{Status: st, Reconnect: c.Reconnect}, err
	case reconcile.Read:
		res, err := x.client.Read(ctx, c.Request)
		return reconcile.ReadCompleted{Result: res}, err
	case reconcile.SaveConfig:
		resp, err := x.client.SaveConfig(ctx, c.Config)
		return reconcile.ConfigSaved{Config: resp.Config, Invocation: resp.Invocation, Reconnect: c.Reconnect}, err
	case reconcile.FetchConfig:
		resp, err := x.client.Config(ctx)
		return reconcile.ConfigFetched{Config: resp.Config, Invocation: resp.Invocation}, err
	case reconcile.FetchStats:
		st, err := x.client.Stats(ctx)
		return reconcile.StatsFetched{Stats: st}, err
	case reconcile.FetchStatus:
		st, err := x.client.Status(ctx)
		return reconcile.StatusFetched{Status: st}, err
	case reconcile.FetchVersion:
		v, err := x.client.Version(ctx)
		return reconcile.VersionFetched{Version: v}, err
	case reconcile.FetchSerialDevices:
		devices, err := x.client.SerialDevices(ctx)
		return reconcile.SerialDevicesFetched{Devices: devices}, err
	}
	return nil, fmt.Errorf("unsupported command %T", cmd)
}
