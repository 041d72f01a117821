package main

import (
	"fmt"
	"os"

	"github.com/blackwell-systems/localstack-control-plane/internal/cli"
	"github.com/blackwell-systems/localstack-control-plane/internal/config"
)

var version = "dev"

func main() {
	// Initialize configuration
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(2)
	}

	// Execute root command
	os.Exit(cli.ExitCode(cli.Execute(version)))
}
