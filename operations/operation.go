package operations

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Masterminds/semver/v3"

	"github.com/storeops/storeops/pkg/logger"
)

// Bundle contains the dependencies required by the Operations API and is
// passed to every OperationHandler. It contains the Logger, Reporter, the
// context provider and the operation registry.
// Use NewBundle to create a new Bundle.
type Bundle struct {
	Logger     logger.Logger
	GetContext func() context.Context
	reporter   Reporter
	Registry   *OperationRegistry
}

// BundleOption is a functional option for configuring a Bundle.
type BundleOption func(*Bundle)

// WithRegistry sets a custom OperationRegistry for the Bundle.
func WithRegistry(registry *OperationRegistry) BundleOption {
	return func(b *Bundle) {
		b.Registry = registry
	}
}

// NewBundle creates and returns a new Bundle.
func NewBundle(getContext func() context.Context, lggr logger.Logger, reporter Reporter, opts ...BundleOption) Bundle {
	b := Bundle{
		Logger:     lggr,
		GetContext: getContext,
		reporter:   reporter,
		Registry:   NewOperationRegistry(),
	}

	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// Reporter returns the Reporter the Bundle records execution outcomes with.
func (b Bundle) Reporter() Reporter {
	return b.reporter
}

// OperationHandler is the function signature of an operation handler.
// DEP is the store connection (or other dependencies) the operation acts on.
type OperationHandler[IN, OUT, DEP any] func(b Bundle, deps DEP, input IN) (output OUT, err error)

// Definition is the identity of an operation: ID, version and description.
// Two operations are considered the same if their Definitions match.
type Definition struct {
	ID          string          `json:"id" yaml:"id"`
	Version     *semver.Version `json:"version" yaml:"version"`
	Description string          `json:"description" yaml:"description"`
}

// Operation is a named unit of remote store work. Developers define their own
// operations with custom input and output types. Each operation should
// perform at most one remote side effect (e.g. insert documents, create a
// table, register a user).
// Use NewOperation to create a new operation.
type Operation[IN, OUT, DEP any] struct {
	def     Definition
	handler OperationHandler[IN, OUT, DEP]
}

// ID returns the operation ID.
func (o *Operation[IN, OUT, DEP]) ID() string {
	return o.def.ID
}

// Version returns the operation semver version in string.
func (o *Operation[IN, OUT, DEP]) Version() string {
	return o.def.Version.String()
}

// Description returns the operation description.
func (o *Operation[IN, OUT, DEP]) Description() string {
	return o.def.Description
}

// Def returns the operation definition.
func (o *Operation[IN, OUT, DEP]) Def() Definition {
	return o.def
}

// execute runs the operation by calling the OperationHandler.
func (o *Operation[IN, OUT, DEP]) execute(b Bundle, deps DEP, input IN) (output OUT, err error) {
	b.Logger.Infow("Executing operation",
		"id", o.def.ID, "version", o.def.Version, "description", o.def.Description)

	return o.handler(b, deps, input)
}

// AsUntyped converts the operation to an untyped operation.
// This is useful for storing operations in a slice or passing them around
// without type constraints.
// Warning: The input and output types will be converted to `any`, so type
// safety is lost.
func (o *Operation[IN, OUT, DEP]) AsUntyped() *Operation[any, any, any] {
	return &Operation[any, any, any]{
		def: o.def,
		handler: func(b Bundle, deps any, input any) (any, error) {
			var typedInput IN
			if input != nil {
				var ok bool
				if typedInput, ok = input.(IN); !ok {
					return nil, errors.New("input type mismatch")
				}
			}

			typedDeps, err := coerceDeps[DEP](deps)
			if err != nil {
				return nil, err
			}

			return o.handler(b, typedDeps, typedInput)
		},
	}
}

// AsUntypedRelaxed converts the operation to an untyped operation whose input
// is coerced into the typed input through a JSON round trip. This allows
// inputs decoded from plan files (map[string]any from YAML) to be passed to a
// typed handler.
func (o *Operation[IN, OUT, DEP]) AsUntypedRelaxed() *Operation[any, any, any] {
	return &Operation[any, any, any]{
		def: o.def,
		handler: func(b Bundle, deps any, input any) (any, error) {
			var typedInput IN
			if input != nil {
				raw, err := json.Marshal(input)
				if err != nil {
					return nil, errors.New("input type mismatch")
				}
				if err := json.Unmarshal(raw, &typedInput); err != nil {
					return nil, errors.New("input type mismatch")
				}
			}

			typedDeps, err := coerceDeps[DEP](deps)
			if err != nil {
				return nil, err
			}

			return o.handler(b, typedDeps, typedInput)
		},
	}
}

func coerceDeps[DEP any](deps any) (DEP, error) {
	var typedDeps DEP
	if deps != nil {
		var ok bool
		if typedDeps, ok = deps.(DEP); !ok {
			return typedDeps, errors.New("dependencies type mismatch")
		}
	}

	return typedDeps, nil
}

// NewOperation creates a new operation.
// Version can be created using semver.MustParse("1.0.0").
// Note: The handler should perform at most one remote side effect.
func NewOperation[IN, OUT, DEP any](
	id string, version *semver.Version, description string, handler OperationHandler[IN, OUT, DEP],
) *Operation[IN, OUT, DEP] {
	return &Operation[IN, OUT, DEP]{
		def: Definition{
			ID:          id,
			Version:     version,
			Description: description,
		},
		handler: handler,
	}
}

// EmptyInput is a placeholder for operations that do not require input.
type EmptyInput struct{}
