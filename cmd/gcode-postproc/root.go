package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolpath-postproc/pkg/config"
	"toolpath-postproc/pkg/log"
)

type rootOptions struct {
	profiles  []string
	logLevel  string
	logFormat string
	noColor   bool

	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "gcode-postproc",
		Short:         "Slow down short layers and smooth extrusion rate changes in G-code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setupLogging(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringArrayVarP(&o.profiles, "config", "c", nil, "Profile file (printer.cfg syntax), repeat to layer overrides")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", "", "Log format: text, json")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored log output")

	cmd.AddCommand(newProcessCmd(o), newEstimateCmd(o), newVersionCmd())
	return cmd
}

func (o *rootOptions) setupLogging(cmd *cobra.Command) error {
	l := log.New("postproc")
	log.ConfigureFromEnv(l)
	l.SetWriter(cmd.ErrOrStderr())
	if o.logLevel != "" {
		l.SetLevel(log.ParseLevel(o.logLevel))
	}
	if o.logFormat != "" {
		format, ok := log.ParseFormat(o.logFormat)
		if !ok {
			return fmt.Errorf("unknown log format %q", o.logFormat)
		}
		l.SetFormat(format)
	}
	if o.noColor {
		l.SetColorize(false)
	}
	log.SetDefaultLogger(l)
	o.logger = l
	return nil
}

// loadProfile reads the --config profiles in order, or returns the defaults
// without one.
func (o *rootOptions) loadProfile() (*config.Profile, error) {
	p, err := config.LoadProfile(o.profiles...)
	if err != nil {
		return nil, err
	}
	if len(o.profiles) > 0 {
		o.logger.WithField("profiles", o.profiles).Debug("profile loaded")
	}
	return p, nil
}
