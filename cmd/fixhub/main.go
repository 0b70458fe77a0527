package main

import (
	"os"

	"github.com/fixhub/fixhub/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
