// Command storeops executes ordered operation sequences against a document
// store and a relational store from a single CLI.
package main

import (
	"os"

	"github.com/storeops/storeops/pkg/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
