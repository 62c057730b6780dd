package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"toolpath-postproc/pkg/config"
	"toolpath-postproc/pkg/gcodefile"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
	"toolpath-postproc/pkg/pipeline"
)

type processOptions struct {
	root *rootOptions

	output     string
	outputDir  string
	suffix     string
	jobs       int
	metricsOut string

	// Profile overrides
	minLayerTime float64
	slope        float64
	relativeE    bool
	layerMarker  string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	o := &processOptions{root: root}
	cmd := &cobra.Command{
		Use:   "process [flags] FILE...",
		Short: "Apply cooling and flow rate equalization to G-code files",
		Long: "Each file is processed layer by layer: short layers are slowed down and the\n" +
			"fan is driven from the layer time, then feedrates are lowered around abrupt\n" +
			"changes of the volumetric extrusion rate. Files ending in .gz or .zst are\n" +
			"read and written compressed. Without --output, --output-dir or --suffix the\n" +
			"files are replaced.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "Output file (single input only)")
	f.StringVar(&o.outputDir, "output-dir", "", "Directory for output files")
	f.StringVar(&o.suffix, "suffix", "", "Suffix inserted before the extension of output files")
	f.IntVarP(&o.jobs, "jobs", "j", runtime.NumCPU(), "Files processed concurrently")
	f.StringVar(&o.metricsOut, "metrics-out", "", "Write filter metrics in Prometheus text format to this file")
	f.Float64Var(&o.minLayerTime, "min-layer-time", 0, "Override slow_down_layer_time of every extruder (s)")
	f.Float64Var(&o.slope, "slope", 0, "Override both volumetric rate slope limits (mm³/s²)")
	f.BoolVar(&o.relativeE, "relative-e", false, "Override relative_e_distances")
	f.StringVar(&o.layerMarker, "layer-marker", "", "Override layer_change_marker")
	return cmd
}

// applyOverrides copies the flags given on the command line into p.
func (o *processOptions) applyOverrides(cmd *cobra.Command, p *config.Profile) error {
	f := cmd.Flags()
	if f.Changed("min-layer-time") {
		for i := range p.Cooling.Extruders {
			p.Cooling.Extruders[i].MinLayerTime = o.minLayerTime
		}
	}
	if f.Changed("slope") {
		p.Flow.Default.Positive = o.slope
		p.Flow.Default.Negative = o.slope
	}
	if f.Changed("relative-e") {
		p.Cooling.RelativeE = o.relativeE
		p.Flow.RelativeE = o.relativeE
	}
	if f.Changed("layer-marker") {
		p.Pipeline.LayerChangeMarker = o.layerMarker
	}
	return p.Validate()
}

func (o *processOptions) outputPath(in string) string {
	if o.output != "" {
		return o.output
	}
	return gcodefile.OutputPath(in, o.outputDir, o.suffix)
}

func (o *processOptions) run(cmd *cobra.Command, files []string) error {
	if o.output != "" && len(files) > 1 {
		return fmt.Errorf("--output needs exactly one input file, got %d", len(files))
	}
	if o.jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}
	profile, err := o.root.loadProfile()
	if err != nil {
		return err
	}
	if err := o.applyOverrides(cmd, profile); err != nil {
		return err
	}
	if o.outputDir != "" {
		if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		mu   sync.Mutex
		errs error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for _, in := range files {
		g.Go(func() error {
			if err := o.processFile(ctx, profile, m, in); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", in, err))
				mu.Unlock()
				o.root.logger.WithError(err).WithField("file", in).Error("processing failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if o.metricsOut != "" {
		errs = multierr.Append(errs, metrics.WriteFile(o.metricsOut, reg))
	}
	return errs
}

// processFile runs one job. Output goes to a temporary file next to the
// destination, renamed into place on success.
func (o *processOptions) processFile(ctx context.Context, profile *config.Profile, m *metrics.FilterMetrics, in string) error {
	start := time.Now()
	out := o.outputPath(in)
	logger := o.root.logger.WithPrefix("job")

	p, err := pipeline.New(profile.Pipeline, profile.Cooling, profile.Flow,
		pipeline.WithLogger(logger), pipeline.WithMetrics(m))
	if err != nil {
		return err
	}

	r, err := gcodefile.Open(in)
	if err != nil {
		return err
	}
	defer r.Close()

	tmp := filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".tmp"+compressedExt(out))
	w, err := gcodefile.Create(tmp)
	if err != nil {
		return err
	}

	if err := p.Run(ctx, r, w); err != nil {
		w.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return err
	}

	rep := p.Report()
	logger.WithFields(log.Fields{
		"file":     in,
		"output":   out,
		"layers":   rep.Layers,
		"before":   fmt.Sprintf("%.1fs", rep.TimeBefore),
		"after":    fmt.Sprintf("%.1fs", rep.TimeAfter),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("file processed")
	return nil
}

// compressedExt keeps the compression of the destination on the temporary
// file, which is chosen by extension.
func compressedExt(path string) string {
	if gcodefile.Detect(path) == gcodefile.None {
		return ""
	}
	return filepath.Ext(path)
}
