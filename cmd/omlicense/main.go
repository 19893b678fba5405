// Command omlicense is the operator tool for OdooMaster licenses: key
// generation, issuance, verification, revocation and local activation.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		// an invalid license has already been reported on stdout
		if !errors.Is(err, errLicenseInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
