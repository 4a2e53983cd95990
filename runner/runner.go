package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/segmentio/ksuid"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/pkg/logger"
)

// ErrConnection marks a failure to reach or verify the store connection.
// Connection errors are fatal: no operation is attempted and the run aborts
// after releasing the connection.
var ErrConnection = errors.New("store connection failed")

// Conn is the store connection a run executes against. Both store backends
// satisfy it. The Runner releases the connection via Close exactly once per
// run.
type Conn interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Policy controls how a run proceeds after a failed operation.
type Policy string

const (
	// PolicyFailFast aborts the remaining operations on the first failure.
	// This is the default: the ordering of side-effecting writes is
	// load-bearing, and later mutations must not run against a state the
	// sequence never intended.
	PolicyFailFast Policy = "fail-fast"

	// PolicyBestEffort attempts every operation and joins all failures into
	// the run error.
	PolicyBestEffort Policy = "best-effort"
)

// ParsePolicy parses a policy name as accepted on the command line.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFailFast, PolicyBestEffort:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)",
			s, PolicyFailFast, PolicyBestEffort)
	}
}

// StepError wraps a failed operation with enough context to diagnose it:
// the operation ID and the underlying cause.
type StepError struct {
	Operation string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("operation %s: %v", e.Operation, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Step pairs an untyped operation with the literal input it will be invoked
// with. Steps are created at definition time and never mutated.
type Step struct {
	Op    *operations.Operation[any, any, any]
	Input any
}

// NewStep erases the operation's type parameters and binds it to its input.
// The step's dependency at execution time is the run's connection.
func NewStep[IN, OUT, DEP any](op *operations.Operation[IN, OUT, DEP], input IN) Step {
	return Step{Op: op.AsUntyped(), Input: input}
}

// RunReport summarizes a single run.
type RunReport struct {
	// RunID is a k-sortable unique ID for the run.
	RunID string
	// ReportID is the ID of the run-level report recorded with the Reporter.
	// Its child reports are the per-operation reports in execution order.
	ReportID string
	// Reports holds the per-operation reports in execution order. Steps that
	// were not invoked (fail-fast abort) have no report.
	Reports []operations.Report[any, any]
	// Err is the joined error of the run, nil on full success.
	Err error

	Start time.Time
	End   time.Time
}

// Runner executes ordered steps against a store connection.
// Use New to create a Runner.
type Runner struct {
	name   string
	lggr   logger.Logger
	policy Policy
	retry  []operations.ExecuteOption[any, any]
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithPolicy sets the failure policy. The default is PolicyFailFast.
func WithPolicy(p Policy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithStepRetry enables per-step retries with the given maximum attempts.
// Retries re-issue the operation's remote call; they are only appropriate for
// sequences whose operations tolerate re-execution.
func WithStepRetry(maxAttempts uint) Option {
	return func(r *Runner) {
		r.retry = []operations.ExecuteOption[any, any]{
			operations.WithRetryConfig(operations.RetryConfig[any, any]{
				Enabled: true,
				Policy:  operations.RetryPolicy{MaxAttempts: maxAttempts},
			}),
		}
	}
}

// New creates a Runner. The name identifies the sequence in logs and in the
// run-level report.
func New(name string, lggr logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		name:   name,
		lggr:   lggr.Named("runner"),
		policy: PolicyFailFast,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes the steps strictly in order against conn. Each operation's
// remote call is awaited to completion before the next begins; there is no
// overlap or parallel dispatch.
//
// The connection is verified with Ping before the first operation; a ping
// failure is returned wrapped in ErrConnection and no step is invoked. The
// connection is released exactly once before Run returns, on every exit path,
// including the empty step list.
//
// Per-operation failures follow the configured Policy. Every failure is
// wrapped in a *StepError, recorded with the Bundle's Reporter and surfaced
// in the returned RunReport and error.
func (r *Runner) Run(b operations.Bundle, conn Conn, steps []Step) (RunReport, error) {
	report := RunReport{
		RunID: ksuid.New().String(),
		Start: time.Now(),
	}

	r.lggr.Infow("Starting run",
		"run_id", report.RunID, "sequence", r.name, "operations", len(steps), "policy", r.policy)

	defer func() {
		if cerr := conn.Close(b.GetContext()); cerr != nil {
			r.lggr.Errorw("Failed to release connection", "run_id", report.RunID, "error", cerr)
		}
	}()

	if err := conn.Ping(b.GetContext()); err != nil {
		report.Err = fmt.Errorf("%w: %v", ErrConnection, err)
		report.End = time.Now()
		r.lggr.Errorw("Store unreachable, aborting run", "run_id", report.RunID, "error", err)

		return report, report.Err
	}

	var errs []error
	childIDs := make([]string, 0, len(steps))
	for i, step := range steps {
		opReport, err := operations.ExecuteOperation(b, step.Op, any(conn), step.Input, r.retry...)
		if opReport.ID != "" {
			childIDs = append(childIDs, opReport.ID)
			report.Reports = append(report.Reports, opReport)
		}

		if err != nil {
			stepErr := &StepError{Operation: step.Op.ID(), Err: err}
			errs = append(errs, stepErr)
			r.lggr.Errorw("Operation failed",
				"run_id", report.RunID, "operation", step.Op.ID(), "error", err)

			if r.policy == PolicyFailFast {
				if remaining := len(steps) - i - 1; remaining > 0 {
					r.lggr.Warnw("Aborting remaining operations",
						"run_id", report.RunID, "skipped", remaining)
				}

				break
			}

			continue
		}

		r.lggr.Infow("Operation succeeded", "run_id", report.RunID, "operation", step.Op.ID())
	}

	report.Err = errors.Join(errs...)
	report.End = time.Now()

	runLevel := operations.NewReport[any, any](
		operations.Definition{
			ID:          "run/" + r.name,
			Version:     semver.MustParse("1.0.0"),
			Description: fmt.Sprintf("run %s of sequence %s", report.RunID, r.name),
		},
		report.RunID, nil, report.Err, childIDs...,
	)
	if err := b.Reporter().AddReport(runLevel.ToGenericReport()); err != nil {
		report.Err = errors.Join(report.Err, fmt.Errorf("record run report: %w", err))
	}
	report.ReportID = runLevel.ID

	r.lggr.Infow("Run finished",
		"run_id", report.RunID, "executed", len(report.Reports),
		"duration", report.End.Sub(report.Start), "failed", report.Err != nil)

	return report, report.Err
}
