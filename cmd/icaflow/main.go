// Package main provides the icaflow air quality ETL CLI.
package main

import (
	"os"

	"github.com/calidata/icaflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
