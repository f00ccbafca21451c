package main

import (
	"os"

	"github.com/msgboxio/log"

	"github.com/hipvpls/core/cmd/hipvpls/cmd"
)

func main() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	if err := cmd.Execute(); err != nil {
		log.Errorf("hipvpls: %v", err)
		os.Exit(cmd.ExitCode(err))
	}
}
