package main

import (
	"os"

	"github.com/kestrelalgo/momentum/cmd/momentum/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
