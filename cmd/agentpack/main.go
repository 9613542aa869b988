// cmd/agentpack/main.go
//
// Entry point for the agentpack CLI.

package main

import (
	"fmt"
	"os"

	"github.com/kingrea/agentpack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
