package operations

import "errors"

// ErrNotInRegistry is returned when an operation cannot be resolved from an
// OperationRegistry by its definition.
var ErrNotInRegistry = errors.New("operation not found in registry")

// OperationRegistry is a store for operations that allows retrieval based on
// their definitions. Plan files are resolved against a registry.
type OperationRegistry struct {
	ops []*Operation[any, any, any]
}

// NewOperationRegistry creates a new OperationRegistry with the provided untyped operations.
func NewOperationRegistry(ops ...*Operation[any, any, any]) *OperationRegistry {
	return &OperationRegistry{
		ops: ops,
	}
}

// Retrieve retrieves an operation from the registry based on its definition.
// It returns ErrNotInRegistry if the operation is not found.
// The definition must match the operation's ID and version.
func (s OperationRegistry) Retrieve(def Definition) (*Operation[any, any, any], error) {
	for _, op := range s.ops {
		if op.ID() == def.ID && op.Version() == def.Version.String() {
			return op, nil
		}
	}

	return nil, ErrNotInRegistry
}

// Definitions returns the definitions of all registered operations in
// registration order.
func (s OperationRegistry) Definitions() []Definition {
	defs := make([]Definition, 0, len(s.ops))
	for _, op := range s.ops {
		defs = append(defs, op.Def())
	}

	return defs
}

// RegisterOperation registers new operations in the registry.
// To register operations with different input, output, and dependency types,
// call RegisterOperation multiple times with different type parameters.
func RegisterOperation[IN, OUT, DEP any](r *OperationRegistry, op ...*Operation[IN, OUT, DEP]) {
	for _, o := range op {
		r.ops = append(r.ops, o.AsUntypedRelaxed())
	}
}
