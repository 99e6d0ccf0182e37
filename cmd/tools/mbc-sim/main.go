// mbc-sim is a stand-in for the remote Modbus service the console talks to.
// It serves the HTTP API and the /ws push channel, optionally mirrors every
// event to MQTT, and can run its own Modbus slave so no hardware is needed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fisaks/mbconsole/internal/config"
	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/messaging"
	"github.com/fisaks/mbconsole/internal/sim"
	"github.com/fisaks/mbconsole/internal/version"
)

func main() {
	var o options
	root := &cobra.Command{
		Use:           "mbc-sim",
		Short:         "Modbus service simulator for mbconsole",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.version {
				fmt.Println(version.Version)
				return nil
			}
			cfg, err := o.apply(cmd)
			if err != nil {
				return err
			}
			return run(cfg, o)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	addFlags(root, &o)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Remote, o options) error {
	if cfg.RequireToken && cfg.Token == "" {
		cfg.Token = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.slave != "" {
		slave, err := sim.StartTCPSlave(o.slave)
		if err != nil {
			return err
		}
		defer slave.Close()
	}
	if o.rtuSlave != "" {
		sc := cfg.Serial
		sc.Device = o.rtuSlave
		closePort, err := sim.StartRTUSlave(sc, cfg.UnitID)
		if err != nil {
			return err
		}
		defer closePort()
	}

	svc := sim.NewService(cfg, nil)
	hub := sim.NewHub(svc.Greeting)
	svc.AddSink(hub)

	if o.mqttURL != "" {
		broker := messaging.NewMsgBroker(messaging.BrokerConfig{
			BrokerURL:        o.mqttURL,
			ClientName:       "sim",
			TopicPrefix:      o.mqttPrefix,
			ConnectTimeout:   10 * time.Second,
			PublishTimeout:   5 * time.Second,
			SubscribeTimeout: 5 * time.Second,
		})
		mirror := sim.NewMirror(broker)
		broker.AddOnConnectPublisher("status", mirror.StatusOnConnect(svc.Status))
		if err := broker.Connect(ctx); err != nil {
			// the client keeps retrying in the background
			logging.Warn("MQTT mirror not connected yet", "broker", o.mqttURL, "error", err)
		}
		defer broker.Close(context.Background())
		svc.AddSink(mirror)
		logging.Info("Mirroring events", "broker", o.mqttURL, "topic", broker.Topic(messaging.EventsTopic))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           sim.NewHandler(svc, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		announce(cfg)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logging.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Disconnect()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func announce(cfg config.Remote) {
	addr := cfg.ListenAddr
	if strings.HasPrefix(addr, ":") || strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1" + addr[strings.LastIndex(addr, ":"):]
	}
	logging.Info("Service simulator listening", "listen", cfg.ListenAddr, "invocation", cfg.Invocation())
	if cfg.RequireToken {
		fmt.Printf("mbconsole --url http://%s --token %s\n", addr, cfg.Token)
		return
	}
	fmt.Printf("mbconsole --url http://%s\n", addr)
}
