package main

import (
	"os"

	"github.com/BenjaminSRussell/shopscout/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
