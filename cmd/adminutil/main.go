// Command adminutil runs one-off administration tasks against the configured
// store.
package main

import (
	"fmt"
	"os"
)

func main() {
	root, c := newRootCmd()
	err := root.Execute()
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
