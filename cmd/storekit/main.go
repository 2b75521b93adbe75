// Command storekit inspects and edits any storage backend storekit supports.
package main

import (
	"os"

	"github.com/gobeaver/storekit/cmd/storekit/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
