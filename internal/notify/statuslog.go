package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// StatusLog appends one line per run to a plain-text file. It writes
// whether or not anything is down.
type StatusLog struct {
	Path   string
	Logger *zap.Logger
}

func NewStatusLog(path string, logger *zap.Logger) *StatusLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusLog{Path: path, Logger: logger}
}

func (s *StatusLog) Name() string { return "status_log" }

func (s *StatusLog) Deliver(ctx context.Context, r domain.Report) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create status log dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open status log: %w", err)
	}
	if _, err := fmt.Fprintln(f, r.LogLine); err != nil {
		f.Close()
		return fmt.Errorf("write status log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close status log: %w", err)
	}
	s.Logger.Info("status_log_written", zap.String("path", s.Path), zap.String("line", r.LogLine))
	return nil
}
