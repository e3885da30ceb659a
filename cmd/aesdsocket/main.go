package main

import (
	"os"

	"github.com/alpacahq/aesdsocket/cmd"
	"github.com/alpacahq/aesdsocket/utils/log"
)

// This is the launcher for all aesdsocket commands

func main() {
	err := cmd.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}
