package main

import (
	"os"

	"github.com/solatis/healthcert/cmd/healthcert/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
