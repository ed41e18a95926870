package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hamed0406/srvstatus/internal/config"
	"github.com/hamed0406/srvstatus/internal/monitor"
)

var errPreflight = errors.New("preflight failed")

func newPreflightCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check configuration without probing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return preflight(cmd.OutOrStdout(), cmd.ErrOrStderr(), *configPath)
		},
	}
}

func preflight(stdout, stderr io.Writer, configPath string) error {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	cfg, err := config.Load(configPath)
	if err != nil {
		fail(err.Error())
		return errPreflight
	}
	ok("config loaded")

	list, err := monitor.SourceFor(cfg).Load()
	switch {
	case err != nil:
		fail("targets: " + err.Error())
	case len(list) == 0:
		warn("target list is empty; every run will report no servers online")
	default:
		ok(fmt.Sprintf("%d targets", len(list)))
	}
	for _, t := range list {
		if !t.Mechanism.Known() {
			warn(fmt.Sprintf("%s uses unsupported mechanism %q (policy: %s)", t.Host, t.Mechanism, cfg.Probe.UnknownMechanism))
		}
	}

	if cfg.StatusLog == "" {
		warn("STATUS_LOG empty; no status log will be written")
	} else if dir := filepath.Dir(cfg.StatusLog); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			warn("status log directory " + dir + " does not exist yet; it will be created")
		} else {
			ok("STATUS_LOG=" + cfg.StatusLog)
		}
	} else {
		ok("STATUS_LOG=" + cfg.StatusLog)
	}

	if !cfg.Mail.Enabled {
		warn("mail disabled; down servers are only written to the status log")
	} else {
		ok(fmt.Sprintf("mail via %s:%d to %d recipients", cfg.Mail.Host, cfg.Mail.Port, len(cfg.Mail.Recipients)))
		if cfg.Mail.Username == "" || cfg.Mail.Password == "" {
			warn("SMTP_USERNAME or SMTP_PASSWORD empty; the relay must accept unauthenticated mail")
		}
		if !cfg.Mail.StartTLS {
			warn("SMTP_STARTTLS off; credentials go over the wire in clear text")
		}
	}

	if cfg.SlackWebhook != "" {
		ok("slack webhook set")
	}

	if failed {
		return errPreflight
	}
	ok("preflight passed")
	return nil
}
