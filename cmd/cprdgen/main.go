// Package main provides the cprdgen command, which generates the batch
// scripts of the CPRD data pipeline.
package main

import (
	"os"

	"github.com/ai-multiply/CPRD-DataPipelineGenerator/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
