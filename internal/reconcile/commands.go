package reconcile

import (
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/mbc"
)

// Command is a side effect requested by Reduce. Op names the operation in
// RequestFailed and in logs.
type Command interface{ Op() string }

type Connect struct{}

// Disconnect with Reconnect set is the first half of an apply-config cycle.
type Disconnect struct{ Reconnect bool }

type Read struct{ Request mbc.ReadRequest }

type SaveConfig struct {
	Config    config.Remote
	Reconnect bool
}

type FetchConfig struct{}
type FetchStats struct{}
type FetchStatus struct{}
type FetchVersion struct{}
type FetchSerialDevices struct{}

func (Connect) Op() string            { return "connect" }
func (Disconnect) Op() string         { return "disconnect" }
func (Read) Op() string               { return "read" }
func (SaveConfig) Op() string         { return "save config" }
func (FetchConfig) Op() string        { return "fetch config" }
func (FetchStats) Op() string         { return "fetch stats" }
func (FetchStatus) Op() string        { return "fetch status" }
func (FetchVersion) Op() string       { return "fetch version" }
func (FetchSerialDevices) Op() string { return "fetch serial devices" }
