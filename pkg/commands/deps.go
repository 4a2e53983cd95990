package commands

import (
	"context"

	"github.com/storeops/storeops/pkg/logger"
	"github.com/storeops/storeops/store/docstore"
	"github.com/storeops/storeops/store/relstore"
)

// DocDialerFunc opens a connection to the document store.
type DocDialerFunc func(ctx context.Context, uri string, lggr logger.Logger) (docstore.Conn, error)

// RelDialerFunc opens a connection to the relational store.
type RelDialerFunc func(ctx context.Context, dsn string, lggr logger.Logger) (relstore.Conn, error)

// Deps holds the injectable dependencies for commands.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// DocDialer opens the document store connection.
	// Default: docstore.Dial
	DocDialer DocDialerFunc

	// RelDialer opens the relational store connection.
	// Default: relstore.Dial
	RelDialer RelDialerFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.DocDialer == nil {
		d.DocDialer = docstore.Dial
	}
	if d.RelDialer == nil {
		d.RelDialer = relstore.Dial
	}
}
