// Package session tracks whether the remote service still accepts our
// credentials. After the first rejection every outbound call is refused
// locally until the process restarts.
package session

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/logging"
)

var ErrLocked = errors.New("session locked: credentials were rejected")

type Gate struct {
	locked atomic.Bool
	once   sync.Once

	mu     sync.Mutex
	onLock []func()
}

func NewGate() *Gate { return &Gate{} }

// OnLock registers fn to run once, on the goroutine that trips the lock.
func (g *Gate) OnLock(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onLock = append(g.onLock, fn)
}

func (g *Gate) Locked() bool { return g.locked.Load() }

// Lock trips the gate. It reports whether this call did the locking.
func (g *Gate) Lock() bool {
	tripped := false
	g.once.Do(func() {
		g.locked.Store(true)
		tripped = true
	})
	if !tripped {
		return false
	}

	logging.Warn("session locked, outbound requests disabled")
	g.mu.Lock()
	hooks := append([]func(){}, g.onLock...)
	g.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return true
}

// Do runs fn unless the gate is locked. An api.ErrUnauthorized from fn
// locks the gate.
func (g *Gate) Do(fn func() error) error {
	if g.Locked() {
		return ErrLocked
	}
	err := fn()
	if errors.Is(err, api.ErrUnauthorized) {
		g.Lock()
	}
	return err
}
