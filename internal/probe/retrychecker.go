package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// RetryChecker repeats a failed check up to Attempts times with a constant
// Backoff between tries. Attempts <= 1 means a single try.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, t domain.Target) domain.ProbeResult {
	if r.Attempts <= 1 {
		return r.Inner.Check(ctx, t)
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	var (
		last  domain.ProbeResult
		tries int
	)
	b := retry.WithMaxRetries(uint64(r.Attempts-1), retry.NewConstant(backoff))
	_ = retry.Do(ctx, b, func(ctx context.Context) error {
		tries++
		last = r.Inner.Check(ctx, t)
		if last.Up() || last.Reason == ReasonUnsupported {
			return nil
		}
		return retry.RetryableError(errors.New(last.Reason))
	})

	if !last.Up() && tries > 1 {
		last.Reason = fmt.Sprintf("%s (after %d attempts)", last.Reason, tries)
	}
	return last
}
