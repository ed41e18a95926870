package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/srvstatus/internal/config"
	"github.com/hamed0406/srvstatus/internal/logging"
	"github.com/hamed0406/srvstatus/internal/monitor"
)

// runFlags override the loaded configuration. Zero values leave it alone.
type runFlags struct {
	targets     string
	statusLog   string
	timeout     time.Duration
	concurrency int
	noMail      bool
}

// NewRootCmd wires the cobra root command. Running it without a
// subcommand is the same as "srvstatus run".
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		flags      runFlags
	)

	runE := func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath, flags)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg, flags)
	}

	root := &cobra.Command{
		Use:           "srvstatus",
		Short:         "Check a list of servers once and report which are down",
		RunE:          runE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	bindRunFlags(root, &flags)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Probe every target and deliver the report",
		Args:  cobra.NoArgs,
		RunE:  runE,
	}
	bindRunFlags(runCmd, &flags)

	root.AddCommand(runCmd)
	root.AddCommand(newPreflightCommand(&configPath))
	return root
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVarP(&f.targets, "targets", "t", "", "Target list file (overrides inline targets)")
	cmd.Flags().StringVar(&f.statusLog, "status-log", "", "Status log file")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-probe timeout")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Probes in flight at once")
	cmd.Flags().BoolVar(&f.noMail, "no-mail", false, "Never send mail, even when servers are down")
}

func loadConfig(path string, f runFlags) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if f.targets != "" {
		cfg.Targets = nil
		cfg.TargetsFile = f.targets
	}
	if f.statusLog != "" {
		cfg.StatusLog = f.statusLog
	}
	if f.timeout > 0 {
		cfg.Probe.TimeoutMS = int(f.timeout / time.Millisecond)
	}
	if f.concurrency > 0 {
		cfg.Probe.Concurrency = f.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, f runFlags) error {
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m, err := monitor.New(cfg, monitor.Options{NoMail: f.noMail}, logger)
	if err != nil {
		return err
	}
	res, err := m.Run(ctx)
	if err != nil {
		return err
	}
	logger.Debug("run_complete", zap.String("run_id", res.Report.RunID))
	return nil
}
