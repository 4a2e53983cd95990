package docstore

import "strings"

// Namespace encapsulates a database and collection name, which together
// uniquely identify a collection within a cluster.
type Namespace struct {
	DB         string
	Collection string
}

// NewNamespace returns a new Namespace for the given database and collection.
func NewNamespace(db, collection string) Namespace {
	return Namespace{DB: db, Collection: collection}
}

// ParseNamespace parses a namespace string into a Namespace.
//
// The namespace string must contain at least one ".", the first of which is
// the separator between the database and collection names. If not, the
// default (invalid) Namespace is returned.
func ParseNamespace(name string) Namespace {
	db, collection, ok := strings.Cut(name, ".")
	if !ok {
		return Namespace{}
	}

	return Namespace{DB: db, Collection: collection}
}

// FullName returns the full namespace string, which is the result of joining
// the database name and the collection name with a "." character.
func (ns *Namespace) FullName() string {
	return ns.DB + "." + ns.Collection
}

// IsValid reports whether both parts of the namespace are set.
func (ns *Namespace) IsValid() bool {
	return ns.DB != "" && ns.Collection != ""
}
