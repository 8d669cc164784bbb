// Command docql validates model declarations, explains compiled query
// artifacts, and runs conformance scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/docql/docql/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
