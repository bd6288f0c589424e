// gatectl is the operator command line for a gatekeeper server: manage
// cameras and gates, open and close barriers, and read the dashboard and
// audit log.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
