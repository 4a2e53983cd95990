// Package plan loads run plans from YAML files and resolves them into
// executable steps against an operation registry.
package plan

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/storeops/storeops/operations"
	"github.com/storeops/storeops/runner"
)

// Entry names one operation of a plan together with its literal input.
type Entry struct {
	Op      string `yaml:"op"`
	Version string `yaml:"version,omitempty"` // defaults to 1.0.0
	Input   any    `yaml:"input,omitempty"`
}

// Plan is an ordered list of named operations to execute over a single store
// connection. The order of Steps is the execution order.
type Plan struct {
	Name   string  `yaml:"name"`
	Policy string  `yaml:"policy,omitempty"` // defaults to fail-fast
	Steps  []Entry `yaml:"steps"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	return Parse(data)
}

// Parse parses a YAML plan document and validates its shape. The referenced
// operations are not resolved until Resolve is called.
func Parse(data []byte) (*Plan, error) {
	p := &Plan{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if p.Name == "" {
		return nil, errors.New("parse plan: name is required")
	}
	if len(p.Steps) == 0 {
		return nil, errors.New("parse plan: at least one step is required")
	}
	for i, e := range p.Steps {
		if e.Op == "" {
			return nil, fmt.Errorf("parse plan: step %d: op is required", i)
		}
	}
	if p.Policy != "" {
		if _, err := runner.ParsePolicy(p.Policy); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	}

	return p, nil
}

// RunPolicy returns the plan's failure policy, defaulting to fail-fast.
func (p *Plan) RunPolicy() runner.Policy {
	if p.Policy == "" {
		return runner.PolicyFailFast
	}

	// validated in Parse
	policy, _ := runner.ParsePolicy(p.Policy)

	return policy
}

// Resolve looks up every entry in the registry and returns the executable
// steps in plan order. Inputs stay as the YAML literals; they are coerced into
// the operations' input types at execution time.
func (p *Plan) Resolve(registry *operations.OperationRegistry) ([]runner.Step, error) {
	steps := make([]runner.Step, 0, len(p.Steps))
	for i, e := range p.Steps {
		version := e.Version
		if version == "" {
			version = "1.0.0"
		}

		v, err := semver.NewVersion(version)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): invalid version %q: %w", i, e.Op, version, err)
		}

		op, err := registry.Retrieve(operations.Definition{ID: e.Op, Version: v})
		if err != nil {
			return nil, fmt.Errorf("step %d (%s@%s): %w", i, e.Op, version, err)
		}

		steps = append(steps, runner.Step{Op: op, Input: e.Input})
	}

	return steps, nil
}
