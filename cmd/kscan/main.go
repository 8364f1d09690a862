// Package main is the entry point for the kscan CLI.
package main

import (
	"os"

	"github.com/kscanio/kscan/cmd/kscan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
