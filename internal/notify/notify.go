package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// Sink delivers a finished report somewhere. Sinks decide for themselves
// whether a report is worth delivering.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, r domain.Report) error
}

// Multi delivers to every sink in order. A failing sink does not stop the
// ones after it; all errors are returned together.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, r domain.Report) error {
	var errs error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, r); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}
