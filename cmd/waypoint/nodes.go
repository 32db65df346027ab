package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/waypoint/gate"
	"github.com/xraph/waypoint/internal/config"
	"github.com/xraph/waypoint/internal/logging"
	"github.com/xraph/waypoint/internal/reports"
	"github.com/xraph/waypoint/node"
)

func newNodesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Print the node registry and which nodes are gated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			reg, gates, err := buildWorkflow(cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNODE\tGATED\tDESCRIPTION")
			for i, spec := range reg.Specs() {
				gated := ""
				if gates.Contains(spec.Name) {
					gated = "yes"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, spec.Name, gated, spec.Description)
			}
			return tw.Flush()
		},
	}
}

// buildWorkflow assembles the report registry and its gate set. A nil
// gate list selects the default gate; an empty one disables gating.
func buildWorkflow(cfg config.File) (*node.Registry, gate.Set, error) {
	reg, err := reports.Registry(
		reports.WithLogger(logging.New("reports")),
		reports.WithLatency(cfg.Reports.Latency),
	)
	if err != nil {
		return nil, gate.Set{}, err
	}

	names := cfg.Gates
	if names == nil {
		names = []string{reports.DefaultGate}
	}
	gates, err := gate.NewSet(reg, names...)
	if err != nil {
		return nil, gate.Set{}, fmt.Errorf("gates: %w", err)
	}
	return reg, gates, nil
}
