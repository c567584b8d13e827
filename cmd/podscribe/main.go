// Command podscribe is the control CLI for the podscribed daemon: queueing
// episodes, inspecting the queue, and managing the worker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "podscribe:", err)
		os.Exit(1)
	}
}
