package main

import (
	"os"

	"github.com/Nilesh2000/joncalhoun-dl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
