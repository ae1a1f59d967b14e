package main

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/bridge"
	"github.com/ac-xchange/uabridge/helpers"
	"github.com/ac-xchange/uabridge/shm"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/alive/v2"
	"github.com/urfave/cli/v2"
)

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print snapshot every interval, no OPC UA",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "override bridge.interval_ms",
			},
		},
		Action: dumpMain,
	}
}

func dumpMain(c *cli.Context) error {
	log := newLog(c)
	cfg, err := loadConfig(c, log)
	if err != nil {
		return err
	}
	if err := cfg.Bridge.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	interval := cfg.Bridge.Interval()
	if d := c.Duration("interval"); d > 0 {
		interval = d
	}

	a := alive.NewAlive()
	helpers.StopOnSignal(a, log, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := helpers.AliveContext(c.Context, a)
	defer cancel()

	src := acshm.NewSource(log, shm.OSOpener{Dir: cfg.Source.Dir}, cfg.Source.PhysicsName, cfg.Source.GraphicsName)
	if err := src.Initialize(); err != nil {
		return errors.Annotate(err, "simulator shared memory")
	}
	defer src.Cleanup()

	clearScreen := isatty.IsTerminal(os.Stdout.Fd())
	loop := &bridge.Loop{
		Log:      log,
		Source:   src,
		Interval: interval,
		OnSnapshot: func(s *acshm.Snapshot) {
			if clearScreen {
				fmt.Fprint(os.Stdout, "\033[H\033[2J")
			}
			printSnapshot(os.Stdout, s, interval)
		},
	}
	err = loop.Run(ctx)
	a.Stop()
	return err
}

func printSnapshot(w io.Writer, s *acshm.Snapshot, interval time.Duration) {
	fmt.Fprintf(w, "CAR DATA: %v update\n", interval)
	fmt.Fprintf(w, "--------------------------\n")
	fmt.Fprintf(w, "Speed:        %d km/h\n", s.Vehicle.SpeedKmh)
	fmt.Fprintf(w, "Engine RPM:   %d RPM\n", s.Vehicle.EngineRPM)
	fmt.Fprintf(w, "Steer Angle:  %d\n", s.Vehicle.SteerAngle)
	fmt.Fprintf(w, "Gear:         %d\n", s.Vehicle.Gear)
	fmt.Fprintf(w, "Fuel:         %d liters\n", s.Vehicle.Fuel)
	fmt.Fprintf(w, "Gas/Brake:    %d%% / %d%%\n", s.Vehicle.Gas, s.Vehicle.Brake)
	fmt.Fprintf(w, "TC/ABS:       %d%% / %d%%\n\n", s.Vehicle.TC, s.Vehicle.ABS)

	fmt.Fprintf(w, "GAME INFO:\n")
	fmt.Fprintf(w, "--------------------------\n")
	fmt.Fprintf(w, "Lap:            %d / %d\n", s.Env.CurrentLap, s.Env.NumberOfLaps)
	fmt.Fprintf(w, "Completed Laps: %d\n", s.Env.CompletedLaps)
	fmt.Fprintf(w, "Position:       %d\n", s.Env.Position)
	fmt.Fprintf(w, "Current Time:   %s\n", s.Times.Current)
	fmt.Fprintf(w, "Last Time:      %s\n", s.Times.Last)
	fmt.Fprintf(w, "Best Time:      %s\n", s.Times.Best)
	fmt.Fprintf(w, "Tyres:          %s\n", s.TyreCompound)
	fmt.Fprintf(w, "Wind:           %.1f km/h %.0f deg\n", s.Misc.WindSpeed, s.Misc.WindDirection)
	fmt.Fprintf(w, "Air/Road:       %.1f / %.1f C\n", s.Misc.AirTemp, s.Misc.RoadTemp)
	fmt.Fprintf(w, "Packets:        %d / %d\n", s.PhysicsPacket, s.GraphicsPacket)
}
