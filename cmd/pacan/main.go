package main

import (
	"os"

	"github.com/kangarko/pacan-analytics/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
