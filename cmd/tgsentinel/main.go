// Command tgsentinel roots the worker, digest, and maintenance processes
// behind one cobra CLI, mirroring the teacher's cmd/ package split between
// the gateway consumer and its supporting methods — here split instead by
// spec.md's own process boundaries (worker loop, digest engine, one-shot
// migration tools).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
