// Package main is the entry point for the duckload CLI binary.
package main

import (
	"os"

	cli "duck-loader/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
