package main

import (
	"os"

	"github.com/eshaffer321/contribution-reconciler/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
