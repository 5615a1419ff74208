// Command commercestackd is the long-running worker and admin service:
// it consumes admitted jobs from the queue, runs them through the
// stack executor, and serves the admission/status HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/jmylchreest/commercestack/cmd/commercestackd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
