package main

import (
	"os"

	"github.com/Harshalzarikar/Beaver-agent/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
