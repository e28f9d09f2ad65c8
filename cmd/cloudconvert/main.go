// Command cloudconvert finds videos on a cloud drive that are not yet in a
// streamable format, converts them locally and uploads the results next to
// the originals.
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cloudconvert: %v\n", err)
		os.Exit(1)
	}
}
