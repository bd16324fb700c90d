// Command echopeer is a transactor peer that answers every request with the
// request's own body.
//
// It speaks on stdin and stdout and logs to stderr, so it can be spawned by
// transactor.StartProcess. It exits when the parent sends stop, closes its
// stdin, or the process is interrupted.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
