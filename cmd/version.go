package cmd

import "fmt"

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	GitCommit = "unknown"
)

// runVersion prints the build identity.
func runVersion() {
	fmt.Printf("agent-rag %s (%s)\n", Version, GitCommit)
}
