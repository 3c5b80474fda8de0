// Package main is the entry point for the ArchiFlow assistant CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Attafii/Archiflow-sub001/cmd/archiflow-assistant/commands"
	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	assistant.Version = version
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
