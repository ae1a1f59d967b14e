package main

import (
	"context"
	"os"
	"syscall"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/bridge"
	"github.com/ac-xchange/uabridge/helpers"
	"github.com/ac-xchange/uabridge/metrics"
	"github.com/ac-xchange/uabridge/shm"
	"github.com/ac-xchange/uabridge/status"
	"github.com/ac-xchange/uabridge/uabatch"
	"github.com/ac-xchange/uabridge/uaclient"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Read shared memory and write snapshot to OPC UA every interval",
		Action: runMain,
	}
}

func runMain(c *cli.Context) error {
	log := newLog(c)
	cfg, err := loadConfig(c, log)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}

	a := alive.NewAlive()
	helpers.StopOnSignal(a, log, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := helpers.AliveContext(c.Context, a)
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		m = metrics.New()
		log.SetErrorFunc(m.ErrorFunc)
		go func() {
			if err := m.Serve(ctx, log, cfg.Metrics.Listen); err != nil {
				log.Error(err)
				a.Stop()
			}
		}()
	}

	st := &status.Status{}
	if err := st.Init(ctx, log, cfg.Status); err != nil {
		return errors.Trace(err)
	}
	defer st.Close()

	src := acshm.NewSource(log, shm.OSOpener{Dir: cfg.Source.Dir}, cfg.Source.PhysicsName, cfg.Source.GraphicsName)
	if err := src.Initialize(); err != nil {
		return errors.Annotate(err, "simulator shared memory")
	}
	defer src.Cleanup()

	client, err := uaclient.Connect(ctx, log, cfg.OPCUA)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			log.Errorf("opcua close err=%v", err)
		}
	}()

	loop := &bridge.Loop{
		Log:      log,
		Source:   src,
		Writer:   uabatch.NewWriter(log, uint16(cfg.OPCUA.Namespace)),
		Session:  client,
		Interval: cfg.Bridge.Interval(),
		Status:   st,
		Metrics:  m,
	}
	sdnotify(daemon.SdNotifyReady)
	log.Infof("connected, writing every %v, Ctrl+C to stop", loop.Interval)
	err = loop.Run(ctx)
	sdnotify(daemon.SdNotifyStopping)
	a.Stop()

	stats := loop.Stats()
	log.Infof("bridge stopped cycles=%d write_failures=%d partial_writes=%d node_rejections=%d",
		stats.Cycles, stats.WriteFailures, stats.PartialWrites, stats.NodeRejections)
	return err
}
