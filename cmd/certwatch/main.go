// Package main provides the entry point for the certwatch CLI.
package main

import (
	"os"

	"github.com/certwatch/certwatch/cmd/certwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
