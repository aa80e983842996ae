package main

import (
	"os"

	"github.com/davidmoltin/procurement-workflows/cmd/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
