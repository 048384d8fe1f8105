package main

import (
	"os"

	"github.com/puhuaqiang/db-query-tool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
