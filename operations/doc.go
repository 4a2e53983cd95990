/*
Package operations provides the building blocks for declaring and executing
named units of remote database work in a structured, traceable manner.

# Core Components

Operation:
  - A single named, semver-versioned unit of store work with typed input,
    output and dependencies
  - Each operation should perform at most one remote side effect
    (e.g. insert documents, create a table, register a user)

Registry:
  - Stores untyped operations and retrieves them by ID and version
  - Used to resolve plan entries into executable operations

Executor:
  - Executes operations with optional retry policies
  - Every execution runs the handler; operations are not assumed to be
    idempotent and prior results are never replayed

Reporter:
  - Records a Report for every execution outcome, success or failure
  - MemoryReporter keeps reports in memory; FileReporter additionally
    appends each report to a JSON-lines audit file

# Basic Usage

	op := operations.NewOperation(
		"insert-places", semver.MustParse("1.0.0"), "Insert example places",
		func(b operations.Bundle, conn docstore.Conn, input InsertInput) (InsertOutput, error) {
			...
		},
	)

	bundle := operations.NewBundle(context.Background, lggr, operations.NewMemoryReporter())
	report, err := operations.ExecuteOperation(bundle, op, conn, input)
*/
package operations
