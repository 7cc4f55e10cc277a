// Package commands implements the creport subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/creport"
	"github.com/arloliu/creport/format"
	"github.com/arloliu/creport/internal/config"
	"github.com/arloliu/creport/mapping"
	"github.com/arloliu/creport/report"
)

const (
	configFlag   = "config"
	logLevelFlag = "log-level"
	gidsFlag     = "gids"
	typeFlag     = "type"
	outputFlag   = "output"

	outputTable = "table"
	outputYAML  = "yaml"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

// NewRootCommand creates the creport command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "creport",
		Short: "Inspect and convert compartment reports",
		Long: `creport reads, inspects and converts compartment reports.

Sources:
  file.bbp, file.crb     single-file binary report
  kv://dir#name          BadgerDB store
  dir, dir.h5d           one dataset per neuron
  null://                discarding sink`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.writeMetrics()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, configFlag, "", "config file (default ./creport.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, logLevelFlag, "", "override logging.level")

	root.AddCommand(newInfoCommand(a))
	root.AddCommand(newFrameCommand(a))
	root.AddCommand(newConvertCommand(a))

	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.registry = prometheus.NewRegistry()

	return nil
}

// open opens source with the configured options plus extra.
func (a *app) open(init report.InitData, extra ...report.Option) (*report.Report, error) {
	opts, err := a.cfg.ReportOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, report.WithLogger(a.logger), report.WithRegisterer(a.registry))

	return creport.OpenWith(init, append(opts, extra...)...)
}

func (a *app) openRead(source, gids, kind string) (*report.Report, error) {
	var set mapping.GIDSet
	if gids != "" {
		var err error
		if set, err = mapping.ParseGIDSet(gids); err != nil {
			return nil, fmt.Errorf("--%s: %w", gidsFlag, err)
		}
	}

	return a.open(report.InitData{Source: source, Mode: format.ModeRead, GIDs: set, Type: kind})
}

func (a *app) writeMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}

func checkOutput(output string) error {
	switch output {
	case outputTable, outputYAML:
		return nil
	default:
		return fmt.Errorf("--%s must be %q or %q, got %q", outputFlag, outputTable, outputYAML, output)
	}
}
