// mbconsole is an operator console for a remote Modbus service: it reads
// coils and registers through the service API, follows its push events and
// decodes register values for display.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fisaks/mbconsole/internal/api"
	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/engine"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
	"github.com/fisaks/mbconsole/internal/messaging"
	"github.com/fisaks/mbconsole/internal/push"
	"github.com/fisaks/mbconsole/internal/reconcile"
	"github.com/fisaks/mbconsole/internal/repl"
	"github.com/fisaks/mbconsole/internal/session"
	"github.com/fisaks/mbconsole/internal/version"
	"github.com/fisaks/mbconsole/internal/view"
)

type options struct {
	configPath string
	baseURL    string
	token      string
	push       string
	mqttURL    string
	mqttPrefix string
	columns    int
	noAuto     bool
	timeoutMs  int
	logLimit   int

	address  string
	count    string
	function string
	version  bool
}

func main() {
	var o options
	root := &cobra.Command{
		Use:           "mbconsole",
		Short:         "Console for a remote Modbus service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.version {
				fmt.Println(version.Version)
				return nil
			}
			cfg, err := o.load(cmd)
			if err != nil {
				return err
			}
			return run(cfg, o)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	def := config.DefaultConsole()
	f := root.Flags()
	f.StringVar(&o.configPath, "config", "", "console config file (json or yaml)")
	f.StringVar(&o.baseURL, "url", def.BaseURL, "service base url")
	f.StringVar(&o.token, "token", "", "access token")
	f.StringVar(&o.push, "push", string(def.Push), "push channel (ws or mqtt)")
	f.StringVar(&o.mqttURL, "mqtt-url", def.MQTT.BrokerURL, "MQTT broker for --push mqtt")
	f.StringVar(&o.mqttPrefix, "mqtt-prefix", def.MQTT.TopicPrefix, "MQTT topic prefix")
	f.IntVar(&o.columns, "cols", def.Columns, "table columns (8 or 16)")
	f.BoolVar(&o.noAuto, "no-auto-connect", false, "do not connect automatically on read")
	f.IntVar(&o.timeoutMs, "timeout", def.RequestTimeoutMs, "http request timeout (ms)")
	f.IntVar(&o.logLimit, "log-limit", def.LogLimit, "service log entries kept")
	f.StringVar(&o.address, "address", "", "initial read address (decimal or 0x...)")
	f.StringVar(&o.count, "count", "", "initial read quantity")
	f.StringVar(&o.function, "function", "", "initial read kind (01..04, coils, discrete_inputs, holding_registers, input_registers)")
	f.BoolVar(&o.version, "version", false, "print version and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load layers the config file, the environment and explicit flags.
func (o *options) load(cmd *cobra.Command) (config.Console, error) {
	cfg := config.DefaultConsole()
	if o.configPath != "" {
		loaded, err := config.LoadConsole(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	changed := cmd.Flags().Changed
	if changed("url") {
		cfg.BaseURL = o.baseURL
	}
	if changed("token") {
		cfg.Token = o.token
	}
	if changed("push") {
		cfg.Push = config.PushKind(o.push)
	}
	if changed("mqtt-url") {
		cfg.MQTT.BrokerURL = o.mqttURL
	}
	if changed("mqtt-prefix") {
		cfg.MQTT.TopicPrefix = o.mqttPrefix
	}
	if changed("cols") {
		cfg.Columns = o.columns
	}
	if o.noAuto {
		cfg.AutoConnect = false
	}
	if changed("timeout") {
		cfg.RequestTimeoutMs = o.timeoutMs
	}
	if changed("log-limit") {
		cfg.LogLimit = o.logLimit
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Console, o options) error {
	if os.Getenv("LOG_LEVEL") == "" {
		// keep the operator view readable
		logging.SetLevel(slog.LevelWarn)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := api.NewClient(cfg.BaseURL, cfg.Token, cfg.RequestTimeout())
	gate := session.NewGate()

	initial := reconcile.NewState(cfg.LogLimit)
	initial.AutoConnect = cfg.AutoConnect
	initial.Columns = cfg.Columns
	eng := engine.New(engine.NewAPIExecutor(client, gate), initial)
	gate.OnLock(func() { eng.Post(reconcile.Unauthorized{}) })

	printer := view.NewPrinter(os.Stdout)
	eng.Observe(printer.OnEvent)

	source, err := pushSource(cfg, client, gate)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(eng.Run(gctx))
	})
	g.Go(func() error {
		err := source(gctx, eng)
		if errors.Is(err, session.ErrLocked) || errors.Is(err, api.ErrUnauthorized) {
			// the lock notice is already on screen
			return nil
		}
		return ignoreCanceled(err)
	})
	g.Go(func() error {
		defer cancel()
		console := repl.NewConsole(eng, os.Stdin, printer, os.Stdout)
		return ignoreCanceled(console.Run(gctx))
	})

	eng.Post(reconcile.Started{})
	for _, ev := range initialEdits(o) {
		eng.Post(ev)
	}

	err = g.Wait()
	eng.Wait()
	return err
}

type sourceFunc func(ctx context.Context, sink push.Sink) error

// pushSource picks the channel that feeds service events into the engine.
// The MQTT source connects and closes its broker itself.
func pushSource(cfg config.Console, client *api.Client, gate *session.Gate) (sourceFunc, error) {
	switch cfg.Push {
	case config.PushMQTT:
		broker := messaging.NewMsgBroker(messaging.BrokerConfig{
			BrokerURL:        cfg.MQTT.BrokerURL,
			ClientName:       "console",
			TopicPrefix:      cfg.MQTT.TopicPrefix,
			ConnectTimeout:   10 * time.Second,
			PublishTimeout:   5 * time.Second,
			SubscribeTimeout: 5 * time.Second,
		})
		return push.NewMQTT(broker).Run, nil
	default:
		u, err := client.PushURL()
		if err != nil {
			return nil, err
		}
		return push.NewWebSocket(u, gate).Run, nil
	}
}

func initialEdits(o options) []reconcile.Event {
	var out []reconcile.Event
	if o.function != "" {
		if k, err := mbc.ParseReadKind(o.function); err == nil {
			out = append(out, reconcile.KindSelected{Kind: k})
		} else {
			logging.Warn("ignoring --function", "error", err)
		}
	}
	if o.address != "" {
		out = append(out, reconcile.AddressEdited{Text: o.address})
	}
	if o.count != "" {
		out = append(out, reconcile.QuantityEdited{Text: o.count})
	}
	return out
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
