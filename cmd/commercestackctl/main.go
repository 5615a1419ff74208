// Command commercestackctl is the one-shot host-integration CLI
// (spec §6 "CLI surface (host integration only)"): it admits one job,
// runs it to completion in this process, and exits with a code a
// calling host can branch on without parsing logs.
package main

import (
	"os"

	"github.com/jmylchreest/commercestack/cmd/commercestackctl/cmd"
)

func main() {
	os.Exit(cmd.Run())
}
