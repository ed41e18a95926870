// Package monitor runs one status check: load targets, probe them, build
// the report and hand it to the sinks.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/srvstatus/internal/config"
	"github.com/hamed0406/srvstatus/internal/domain"
	"github.com/hamed0406/srvstatus/internal/notify"
	"github.com/hamed0406/srvstatus/internal/probe"
	"github.com/hamed0406/srvstatus/internal/report"
	"github.com/hamed0406/srvstatus/internal/targets"
)

// Options are run-time switches that are not part of the config file.
type Options struct {
	NoMail bool
}

// Result is what a run produced. Outcome is empty when targets could not
// be loaded.
type Result struct {
	Outcome probe.Outcome
	Report  domain.Report
}

type Monitor struct {
	Logger *zap.Logger
	Source targets.Source
	Runner *probe.Runner
	Sinks  notify.Multi
	Now    func() time.Time
}

// New wires a Monitor from configuration.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := probe.ParseUnknownPolicy(cfg.Probe.UnknownMechanism)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		Logger: logger,
		Source: SourceFor(cfg),
		Runner: probe.NewRunner(logger, CheckerFor(cfg.Probe), cfg.Probe.Concurrency, policy),
		Sinks:  SinksFor(cfg, opts, logger),
		Now:    time.Now,
	}, nil
}

// SourceFor prefers inline targets over the target list file.
func SourceFor(cfg *config.Config) targets.Source {
	if len(cfg.Targets) > 0 {
		return targets.Inline(cfg.Targets)
	}
	return targets.File(cfg.TargetsFile)
}

func CheckerFor(p config.ProbeConfig) probe.Checker {
	var c probe.Checker = probe.NewTCPChecker(p.Timeout())
	if p.RetryAttempts > 1 {
		c = &probe.RetryChecker{Inner: c, Attempts: p.RetryAttempts, Backoff: p.RetryBackoff()}
	}
	return c
}

// SinksFor returns the sinks in delivery order: status log, mail, slack.
func SinksFor(cfg *config.Config, opts Options, logger *zap.Logger) notify.Multi {
	var sinks notify.Multi
	if cfg.StatusLog != "" {
		sinks = append(sinks, notify.NewStatusLog(cfg.StatusLog, logger))
	}
	if cfg.Mail.Enabled && !opts.NoMail {
		sinks = append(sinks, notify.NewMail(notify.MailConfig{
			Host:       cfg.Mail.Host,
			Port:       cfg.Mail.Port,
			Username:   cfg.Mail.Username,
			Password:   cfg.Mail.Password,
			From:       cfg.Mail.From,
			Recipients: cfg.Mail.Recipients,
			StartTLS:   cfg.Mail.StartTLS,
			Timeout:    cfg.Mail.Timeout(),
		}, logger))
	}
	if s := notify.NewSlack(cfg.SlackWebhook, logger); s != nil {
		sinks = append(sinks, s)
	}
	return sinks
}

// Run performs one check. A target list that cannot be loaded aborts the
// run before anything is probed. Sink errors are returned after every sink
// was tried; the report is still returned with them.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	m.Logger.Info("status_checker_running")
	defer m.Logger.Info("status_checker_exiting")

	list, err := m.Source.Load()
	if err != nil {
		m.Logger.Error("targets_load_failed", zap.Error(err))
		return Result{}, fmt.Errorf("load targets: %w", err)
	}
	m.Logger.Info("targets_loaded", zap.Int("count", len(list)))

	outcome := m.Runner.Run(ctx, list)

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	rep := report.Build(outcome.Up, outcome.Down, len(list), now())
	m.Logger.Info("report_built",
		zap.String("run_id", rep.RunID),
		zap.Int("up", len(rep.Up)),
		zap.Int("down", len(rep.Down)),
		zap.Int("skipped", len(outcome.Skipped)),
		zap.String("priority", rep.Priority.String()),
		zap.Bool("notify", rep.ShouldNotify),
	)

	res := Result{Outcome: outcome, Report: rep}
	if err := m.Sinks.Deliver(ctx, rep); err != nil {
		m.Logger.Error("report_delivery_failed", zap.Error(err))
		return res, fmt.Errorf("deliver report: %w", err)
	}
	return res, nil
}
