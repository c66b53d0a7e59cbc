// Command recipe is the CLI entry point for the Recipe Execution Core: it
// loads a recipe document, resolves variables, and drives the Group
// Executor to completion.
package main

import (
	"fmt"
	"os"

	"github.com/recipe-core/engine/cmd/recipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
