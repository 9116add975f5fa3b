// Package main is the trainer-hub entry point: the HTTP API with the session
// lifecycle manager, background jobs and database maintenance commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
