// Package main provides the entry point for the sym CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sym-studio/sym-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
