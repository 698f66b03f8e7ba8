// Command contractctl is the offline companion of contractd: it generates
// signing keys, computes contract digests, signs them and checks exported
// audit trails.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
