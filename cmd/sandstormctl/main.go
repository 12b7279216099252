// Command sandstormctl is the operator CLI for the sandbox gateway. It wires
// the installed drivers and calls straight into the Gateway Facade
// in-process, rather than issuing HTTP requests to a server.
package main

import (
	"fmt"
	"os"

	"github.com/sandstormio/gateway/cmd/sandstormctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
