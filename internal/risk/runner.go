package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrSuperseded is returned when a newer evaluation started for the same scope.
	ErrSuperseded = errors.New("evaluation superseded")

	// ErrAbandoned is returned when the caller's context ended before a decision.
	ErrAbandoned = errors.New("evaluation abandoned")
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 8 * time.Second

// Provider produces the finding for one category. Implementations report
// failures as unknown-severity findings instead of errors.
type Provider interface {
	Category() Category
	Evaluate(ctx context.Context, req Request) Finding
}

// Observer receives evaluation metrics.
type Observer interface {
	ObserveProvider(category Category, elapsed time.Duration, failed bool)
	ObserveDecision(decision Decision)
}

// DecidedFunc is invoked exactly once per evaluation, from the DECIDED
// transition, while the evaluation is still current.
type DecidedFunc func(ctx context.Context, outcome Outcome) error

// Runner evaluates all providers concurrently and drives the engine.
type Runner struct {
	providers []Provider
	tracker   *Tracker
	timeout   time.Duration
	observer  Observer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeout sets the per-provider timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// NewRunner requires exactly one provider per registered category.
func NewRunner(providers []Provider, tracker *Tracker, opts ...RunnerOption) (*Runner, error) {
	seen := make(map[Category]bool, len(providers))
	for _, p := range providers {
		c := p.Category()
		if !c.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate provider for category %q", c)
		}
		seen[c] = true
	}
	for _, c := range registry {
		if !seen[c] {
			return nil, fmt.Errorf("missing provider for category %q", c)
		}
	}
	if tracker == nil {
		tracker = NewTracker()
	}

	r := &Runner{
		providers: providers,
		tracker:   tracker,
		timeout:   DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Tracker returns the tracker shared by all evaluations of this runner.
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Run starts a new evaluation for scope, superseding any evaluation already
// running for it. onDecided is called directly from the DECIDED transition;
// a superseded or abandoned evaluation never calls it and its late findings
// are discarded.
func (r *Runner) Run(ctx context.Context, scope string, req Request, onDecided DecidedFunc) (Outcome, error) {
	evaluationID := r.tracker.Begin(scope)
	engine := NewEngine(evaluationID)

	logger := log.With().
		Str("scope", scope).
		Str("evaluation_id", evaluationID).
		Logger()

	results := make(chan Finding, len(r.providers))
	for _, p := range r.providers {
		go func(p Provider) {
			results <- r.evaluate(ctx, p, req)
		}(p)
	}

	abandon := func() (Outcome, error) {
		r.tracker.Abandon(scope, evaluationID)
		logger.Info().Int("reported", engine.Reported()).Msg("Evaluation abandoned")
		return Outcome{}, fmt.Errorf("%w: %v", ErrAbandoned, ctx.Err())
	}

	for {
		select {
		case <-ctx.Done():
			return abandon()

		case f := <-results:
			if ctx.Err() != nil {
				return abandon()
			}
			if !r.tracker.IsCurrent(scope, evaluationID) {
				logger.Info().Str("category", string(f.Category)).Msg("Discarding finding from superseded evaluation")
				return Outcome{}, ErrSuperseded
			}

			outcome, decided, err := engine.Record(f)
			if err != nil {
				return Outcome{}, err
			}
			if !decided {
				continue
			}

			if !r.tracker.Claim(scope, evaluationID) {
				return Outcome{}, ErrSuperseded
			}
			if r.observer != nil {
				r.observer.ObserveDecision(outcome.Decision)
			}
			logger.Info().Str("decision", string(outcome.Decision)).Msg("Evaluation decided")

			if onDecided != nil {
				if err := onDecided(ctx, outcome); err != nil {
					return outcome, err
				}
			}
			return outcome, nil
		}
	}
}

// evaluate runs one provider with a bounded wait. Timeouts and panics become
// unknown-severity findings.
func (r *Runner) evaluate(ctx context.Context, p Provider, req Request) Finding {
	category := p.Category()
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Finding, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("category", string(category)).
					Interface("panic", rec).
					Msg("Provider panicked")
				done <- Failed(category, fmt.Sprintf("provider panicked: %v", rec))
			}
		}()
		done <- p.Evaluate(pctx, req)
	}()

	var f Finding
	select {
	case f = <-done:
	case <-pctx.Done():
		if ctx.Err() != nil {
			f = Failed(category, "evaluation cancelled")
		} else {
			f = Failed(category, fmt.Sprintf("timed out after %s", r.timeout))
		}
	}
	f.Category = category
	if !f.Severity.IsValid() {
		f.Severity = SeverityUnknown
	}

	failed := f.ErrorReason != ""
	if failed {
		log.Warn().
			Str("category", string(category)).
			Str("reason", f.ErrorReason).
			Msg("Provider failed")
	}
	if r.observer != nil {
		r.observer.ObserveProvider(category, time.Since(start), failed)
	}
	return f
}
