package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fisaks/mbconsole/internal/api"
)

func TestGatePassesThrough(t *testing.T) {
	g := NewGate()
	calls := 0
	err := g.Do(func() error { calls++; return nil })
	require.NoError(t, err)

	boom := errors.New("boom")
	err = g.Do(func() error { calls++; return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, g.Locked())
	require.Equal(t, 2, calls)
}

func TestGateLocksOnUnauthorized(t *testing.T) {
	g := NewGate()
	var fired atomic.Int32
	g.OnLock(func() { fired.Add(1) })

	err := g.Do(func() error { return fmt.Errorf("GET /api/config: %w", api.ErrUnauthorized) })
	require.ErrorIs(t, err, api.ErrUnauthorized)
	require.True(t, g.Locked())

	attempted := false
	err = g.Do(func() error { attempted = true; return nil })
	require.ErrorIs(t, err, ErrLocked)
	require.False(t, attempted, "locked gate must not attempt requests")
	require.Equal(t, int32(1), fired.Load())
}

func TestGateLocksOnceUnderConcurrency(t *testing.T) {
	g := NewGate()
	var fired atomic.Int32
	g.OnLock(func() { fired.Add(1) })

	var wg sync.WaitGroup
	var tripped atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Lock() {
				tripped.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), tripped.Load())
	require.Equal(t, int32(1), fired.Load())
}
