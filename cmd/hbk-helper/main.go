package main

import (
	"os"

	"github.com/mussolene/1c-hbk-helper/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
