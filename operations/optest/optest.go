// Package optest provides utilities for operations testing.
package optest

import (
	"context"
	"testing"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/pkg/logger"
)

// NewBundle creates a new operations bundle for testing with a test logger
// and a memory reporter.
func NewBundle(t *testing.T) operations.Bundle {
	t.Helper()

	return operations.NewBundle(
		context.Background, logger.Test(t), operations.NewMemoryReporter(),
	)
}
