package main

import (
	"os"

	"github.com/deepdist/tabular/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
