// Command unitd supervises services declared as unit files: it loads
// them from --unit-dir, starts them in dependency order, restarts them
// per policy, and serves a control socket for
// list/start/stop/restart/status/shutdown.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
