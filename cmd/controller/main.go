package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "controller",
		Short: "Whisk control plane",
		Long:  "Run the Whisk FaaS control plane: entity store, invoker registry, and invocation orchestrator behind an OpenWhisk-compatible HTTP API",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
