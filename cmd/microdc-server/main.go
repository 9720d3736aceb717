// Package main provides the microdc control plane server.
//
// This is the main entrypoint for the microdc-server binary, which serves the
// REST API, runs the reconciliation loop and offers maintenance commands.
package main

import (
	"os"

	"github.com/yaroslav/microdc/cmd/microdc-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
