// Package engine runs the reconcile loop: one goroutine applies events to
// the state in arrival order, commands run concurrently and report back as
// events.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/reconcile"
)

// Executor performs one command and returns the event describing its
// outcome, or nil when there is nothing to report.
type Executor interface {
	Execute(ctx context.Context, cmd reconcile.Command) reconcile.Event
}

// Observer is called on the loop goroutine after every event. It must not
// block and must not call Post.
type Observer func(state reconcile.State, ev reconcile.Event)

type Engine struct {
	exec   Executor
	events chan reconcile.Event
	done   chan struct{}

	mu        sync.RWMutex
	state     reconcile.State
	observers []Observer

	inflight sync.WaitGroup
}

func New(exec Executor, initial reconcile.State) *Engine {
	return &Engine{
		exec:   exec,
		events: make(chan reconcile.Event, 64),
		done:   make(chan struct{}),
		state:  initial,
	}
}

// Observe registers fn. Call before Run.
func (e *Engine) Observe(fn Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Post queues ev. Safe from any goroutine; a no-op once Run has returned.
func (e *Engine) Post(ev reconcile.Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// State returns the latest state snapshot.
func (e *Engine) State() reconcile.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.step(ctx, ev)
		}
	}
}

// Wait blocks until every started command has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) step(ctx context.Context, ev reconcile.Event) {
	e.mu.Lock()
	next, cmds := reconcile.Reduce(e.state, ev)
	e.state = next
	observers := e.observers
	e.mu.Unlock()

	logging.Debug("engine event", "event", fmt.Sprintf("%T", ev), "commands", len(cmds), "phase", next.Conn.Phase.String())

	for _, fn := range observers {
		fn(next, ev)
	}
	for _, cmd := range cmds {
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			if out := e.exec.Execute(ctx, cmd); out != nil {
				e.Post(out)
			}
		}()
	}
}
