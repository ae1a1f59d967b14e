package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/bridge"
	"github.com/urfave/cli/v2"
)

func layoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "layout",
		Usage: "Print shared memory record layouts and OPC UA node table",
		Action: func(c *cli.Context) error {
			printLayouts(os.Stdout)
			return nil
		},
	}
}

func printLayouts(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, l := range []*acshm.Layout{&acshm.PhysicsLayout, &acshm.GraphicsLayout} {
		fmt.Fprintf(tw, "%s\tsize=%d\n", l.Name, l.Size)
		for _, f := range l.Fields {
			fmt.Fprintf(tw, "\t%d\t%d\t%s\t%s\n", f.Offset, f.Size(), f.Kind, f.Name)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintf(tw, "nodes\tcount=%d\n", len(bridge.Nodes))
	for i, n := range bridge.Nodes {
		fmt.Fprintf(tw, "\t%d\t%s\n", i, n.ID)
	}
	tw.Flush()
}
