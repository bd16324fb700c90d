// Package subprocess runs a peer process whose stdin and stdout carry the
// transactor's frames.
//
// The package handles process lifecycle management, stderr capture, and exit
// status reporting. Stdin and stdout are plain OS pipes owned by the parent,
// so frames the child wrote before exiting remain readable after it exits.
package subprocess
