package main

import (
	"os"

	"github.com/sqlrag/sqlrag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
