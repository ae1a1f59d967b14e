package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ac-xchange/uabridge/config"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var BuildVersion string = "unknown" // set by ldflags -X

func main() {
	app := &cli.App{
		Name:    "uabridge",
		Usage:   "Publish simulator shared memory telemetry to OPC UA server",
		Version: BuildVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "HCL config file, environment overrides it",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Debug logging",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			dumpCommand(),
			layoutCommand(),
		},
	}
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errors.ErrorStack(err))
		os.Exit(1)
	}
}

// newLog under systemd or without terminal leaves timestamps to journal.
func newLog(c *cli.Context) *log2.Log {
	log := log2.NewStderr(log2.LInfo)
	if sdnotify("STATUS=starting") || !isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if c.Bool("debug") {
		log.SetLevel(log2.LDebug)
	}
	return log
}

func loadConfig(c *cli.Context, log *log2.Log) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.ReadConfig(log, config.NewOsFullReader(), path)
		if err != nil {
			return nil, errors.Annotate(err, "config")
		}
	} else {
		cfg = config.Default()
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Bridge.LogDebug {
		log.SetLevel(log2.LDebug)
	}
	return cfg, nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
