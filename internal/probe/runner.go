package probe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// UnknownPolicy decides what happens to a target whose mechanism is not
// recognised.
type UnknownPolicy string

const (
	UnknownDown UnknownPolicy = "down"
	UnknownSkip UnknownPolicy = "skip"
)

func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(s); p {
	case UnknownDown, UnknownSkip:
		return p, nil
	case "":
		return UnknownDown, nil
	default:
		return "", fmt.Errorf("unknown mechanism policy %q (want down or skip)", s)
	}
}

// Outcome is the result of one run. Up, Down and Skipped keep the order the
// targets were given in, whatever the concurrency.
type Outcome struct {
	Up      []domain.Target
	Down    []domain.Target
	Skipped []domain.Target
	Results []domain.ProbeResult
}

type Runner struct {
	Logger      *zap.Logger
	Checker     Checker
	Concurrency int
	Unknown     UnknownPolicy
}

func NewRunner(logger *zap.Logger, checker Checker, concurrency int, unknown UnknownPolicy) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if unknown == "" {
		unknown = UnknownDown
	}
	return &Runner{
		Logger:      logger,
		Checker:     checker,
		Concurrency: concurrency,
		Unknown:     unknown,
	}
}

// Run probes every target once. With Concurrency 1 the probes run strictly
// one after the other in input order.
func (r *Runner) Run(ctx context.Context, targets []domain.Target) Outcome {
	results := make([]*domain.ProbeResult, len(targets))

	var g errgroup.Group
	g.SetLimit(r.Concurrency)

	for i, t := range targets {
		if !t.Mechanism.Known() && r.Unknown == UnknownSkip {
			r.Logger.Warn("probe_skipped",
				zap.String("host", t.Host),
				zap.String("mechanism", string(t.Mechanism)),
				zap.Int("port", t.Port),
			)
			continue
		}
		i, t := i, t
		g.Go(func() error {
			res := r.probe(ctx, t)
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	var out Outcome
	for i, res := range results {
		if res == nil {
			out.Skipped = append(out.Skipped, targets[i])
			continue
		}
		out.Results = append(out.Results, *res)
		if res.Up() {
			out.Up = append(out.Up, targets[i])
		} else {
			out.Down = append(out.Down, targets[i])
		}
	}
	return out
}

func (r *Runner) probe(ctx context.Context, t domain.Target) domain.ProbeResult {
	log := r.Logger.With(zap.String("host", t.Host), zap.Int("port", t.Port))
	log.Info("probe_checking", zap.String("mechanism", string(t.Mechanism)))

	var res domain.ProbeResult
	switch t.Mechanism {
	case domain.MechanismPlain:
		log.Info("probe_using_plain")
		res = r.Checker.Check(ctx, t)
	case domain.MechanismTLS:
		log.Info("probe_using_ssl")
		res = r.Checker.Check(ctx, t)
	default:
		log.Warn("probe_invalid_mechanism", zap.String("mechanism", string(t.Mechanism)))
		res = domain.ProbeResult{
			Target:     t,
			Status:     domain.StatusDown,
			Reason:     ReasonUnsupported,
			ObservedAt: time.Now().UTC(),
		}
	}

	if res.Up() {
		log.Info("probe_up", zap.Duration("latency", res.Latency))
	} else {
		log.Warn("probe_down", zap.String("reason", res.Reason), zap.Duration("latency", res.Latency))
	}
	return res
}
