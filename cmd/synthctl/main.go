// cmd/synthctl/main.go
// synthctl is the command line client for the synthesis backend. It drives
// session submission, progress watching, and catalog management against a
// running synthd.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
