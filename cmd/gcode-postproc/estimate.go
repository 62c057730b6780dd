package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"toolpath-postproc/pkg/config"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/gcodefile"
	"toolpath-postproc/pkg/pipeline"
)

type estimateOptions struct {
	root    *rootOptions
	summary bool
}

func newEstimateCmd(root *rootOptions) *cobra.Command {
	o := &estimateOptions{root: root}
	cmd := &cobra.Command{
		Use:   "estimate [flags] FILE...",
		Short: "Print the motion time of every layer",
		Long: "Moves run at their commanded feedrate; acceleration is ignored. Moves before\n" +
			"the first feedrate use the travel_speed of the profile.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := o.root.loadProfile()
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := o.estimate(cmd.OutOrStdout(), profile, path); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&o.summary, "summary", "s", false, "Only print the totals")
	return cmd
}

func layerName(layer int) string {
	if layer == pipeline.Prologue {
		return "start"
	}
	return fmt.Sprint(layer)
}

func (o *estimateOptions) estimate(w io.Writer, profile *config.Profile, path string) error {
	r, err := gcodefile.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	sim := gcode.NewSimulator(profile.Cooling.ToolchangePrefix, profile.Cooling.RelativeE)
	sim.DefaultFeedrate = profile.Pipeline.TravelSpeed
	lr := pipeline.NewLayerReader(r, profile.Pipeline.LayerChangeMarker)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t\t\t\t\n", path)
	if !o.summary {
		fmt.Fprintln(tw, "layer\ttime (s)\tlength (mm)\textrusion (mm)\t")
	}
	var total gcode.Stats
	layers := 0
	for {
		text, layer, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		st := sim.Feed(text)
		total.Time += st.Time
		total.Length += st.Length
		total.Extrusion += st.Extrusion
		if layer != pipeline.Prologue {
			layers++
		}
		if !o.summary {
			fmt.Fprintf(tw, "%s\t%.2f\t%.1f\t%.2f\t\n", layerName(layer), st.Time, st.Length, st.Extrusion)
		}
	}
	fmt.Fprintf(tw, "total (%d layers)\t%.2f\t%.1f\t%.2f\t\n", layers, total.Time, total.Length, total.Extrusion)
	return tw.Flush()
}
