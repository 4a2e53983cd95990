package operations

import (
	"github.com/avast/retry-go/v4"
)

// ExecuteConfig is the configuration for the ExecuteOperation function.
type ExecuteConfig[IN, DEP any] struct {
	retryConfig RetryConfig[IN, DEP]
}

type ExecuteOption[IN, DEP any] func(*ExecuteConfig[IN, DEP])

type RetryConfig[IN, DEP any] struct {
	// Enabled determines if the retry is enabled for the operation.
	Enabled bool

	// Policy is the retry policy to control the behavior of the retry.
	Policy RetryPolicy

	// InputHook is a function that returns an updated input before retrying
	// the operation. The operation when retried will use the input returned
	// by this function. Useful for scenarios like shrinking a batch after a
	// validation failure.
	InputHook func(attempt uint, err error, input IN, deps DEP) IN
}

// newDisabledRetryConfig returns a default retry configuration that is initially disabled.
func newDisabledRetryConfig[IN, DEP any]() RetryConfig[IN, DEP] {
	return RetryConfig[IN, DEP]{
		Enabled: false,
		Policy: RetryPolicy{
			MaxAttempts: 10,
		},
	}
}

// RetryPolicy defines the arguments to control the retry behavior.
type RetryPolicy struct {
	MaxAttempts uint
}

// options returns the 'avast/retry' functional options for the retry policy.
func (p RetryPolicy) options() []retry.Option {
	return []retry.Option{
		retry.Attempts(p.MaxAttempts),
	}
}

// WithRetry is an ExecuteOption that enables the default retry for the operation.
func WithRetry[IN, DEP any]() ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig.Enabled = true
	}
}

// WithRetryInput is an ExecuteOption that enables the default retry and
// provides an input transform function which will modify the input on each
// retry attempt.
func WithRetryInput[IN, DEP any](inputHookFunc func(uint, error, IN, DEP) IN) ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig.Enabled = true
		c.retryConfig.InputHook = inputHookFunc
	}
}

// WithRetryConfig is an ExecuteOption that sets the retry configuration. This
// provides a way to customize the retry behavior specific to the needs of the
// operation.
func WithRetryConfig[IN, DEP any](config RetryConfig[IN, DEP]) ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig = config
	}
}

// ExecuteOperation executes an operation with the given input and dependencies.
//
// Every call executes the handler. Store operations are not idempotent
// (inserts in particular), so previously recorded results are never replayed;
// re-running a sequence re-issues its side effects.
//
// Retry:
// Retries are disabled by default. Use WithRetry or WithRetryConfig to enable
// them. To cancel the retry early, return an error wrapped with
// NewUnrecoverableError.
//
// Reporting:
// A Report is recorded with the Bundle's Reporter on every outcome, success
// or failure. A reporter failure is returned as the execution error.
func ExecuteOperation[IN, OUT, DEP any](
	b Bundle,
	operation *Operation[IN, OUT, DEP],
	deps DEP,
	input IN,
	opts ...ExecuteOption[IN, DEP],
) (Report[IN, OUT], error) {
	executeConfig := &ExecuteConfig[IN, DEP]{
		retryConfig: newDisabledRetryConfig[IN, DEP](),
	}
	for _, opt := range opts {
		opt(executeConfig)
	}

	var output OUT
	var err error

	if executeConfig.retryConfig.Enabled {
		var inputTemp = input

		// Generate the configurable options for the retry
		retryOpts := executeConfig.retryConfig.Policy.options()
		// Use the operation context in the retry
		retryOpts = append(retryOpts, retry.Context(b.GetContext()))
		// Append the retry logic which will log the retry and attempt to
		// transform the input if the user provided a custom input hook.
		retryOpts = append(retryOpts, retry.OnRetry(func(attempt uint, err error) {
			b.Logger.Infow("Operation failed. Retrying...",
				"operation", operation.def.ID, "attempt", attempt, "error", err)

			if executeConfig.retryConfig.InputHook != nil {
				inputTemp = executeConfig.retryConfig.InputHook(attempt, err, inputTemp, deps)
			}
		}))

		output, err = retry.DoWithData(
			func() (OUT, error) {
				return operation.execute(b, deps, inputTemp)
			},
			retryOpts...,
		)
	} else {
		output, err = operation.execute(b, deps, input)
	}

	report := NewReport(operation.def, input, output, err)
	if err = b.reporter.AddReport(genericReport(report)); err != nil {
		return Report[IN, OUT]{}, err
	}

	if report.Err != nil {
		return report, report.Err
	}

	return report, nil
}

// NewUnrecoverableError creates an error that indicates an unrecoverable
// error. If this error is returned inside an operation, the operation will no
// longer retry. This allows the operation to fail fast if it encounters an
// unrecoverable error (e.g. a schema validation failure that no retry fixes).
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}
