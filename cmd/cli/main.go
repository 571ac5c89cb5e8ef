// Package main is the entry point for the govctl CLI binary.
package main

import (
	"os"

	cli "lakegov/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
