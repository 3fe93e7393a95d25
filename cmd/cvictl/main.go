package main

import (
	"os"

	"github.com/oremus-labs/ol-cvi-coach/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
