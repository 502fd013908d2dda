package main

import (
	"os"

	"github.com/ericfisherdev/credrelay/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
