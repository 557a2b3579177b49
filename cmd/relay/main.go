// cmd/relay/main.go
//
// This is the entry point for the relay CLI.
//
// Every command resolves the storage root first (--root flag, then the
// RELAY_ROOT environment variable, then ./.relay), builds the shared
// logger, and operates on the namespace under that root.

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}
