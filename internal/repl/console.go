package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/view"
)

// Engine is the part of the engine the console drives.
type Engine interface {
	Post(ev reconcile.Event)
	State() reconcile.State
}

type Console struct {
	eng    Engine
	in     io.Reader
	out    *view.Printer
	prompt io.Writer
}

// NewConsole reads commands from in. prompt may be nil.
func NewConsole(eng Engine, in io.Reader, out *view.Printer, prompt io.Writer) *Console {
	return &Console{eng: eng, in: in, out: out, prompt: prompt}
}

// Run processes lines until quit, end of input or ctx is done. It returns
// nil on quit and end of input so callers can cancel everything else.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		c.showPrompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			logging.Debug("console input closed")
			return nil
		case line := <-lines:
			if c.Exec(line) {
				return nil
			}
		}
	}
}

// Exec runs one command line and reports whether the console should stop.
func (c *Console) Exec(line string) bool {
	events, action, err := Parse(line, c.eng.State())
	if err != nil {
		c.out.Errorln(err.Error())
		return false
	}
	for _, ev := range events {
		c.eng.Post(ev)
	}
	switch action {
	case ActionShow:
		c.out.Show(c.eng.State())
	case ActionConfig:
		c.out.Config(c.eng.State())
	case ActionHelp:
		c.out.Println(Help)
	case ActionQuit:
		return true
	}
	return false
}

func (c *Console) showPrompt() {
	if c.prompt != nil {
		fmt.Fprint(c.prompt, "mbc> ")
	}
}
