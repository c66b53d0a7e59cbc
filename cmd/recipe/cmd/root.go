package cmd

import (
	"errors"
	"os"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	// Global flags.
	verbose bool
	workDir string
)

var rootCmd = &cobra.Command{
	Use:   "recipe",
	Short: "Recipe Execution Core - generate and patch project files from a step DAG",
	Long: `recipe runs a declarative recipe document: a DAG of steps dispatched to a
closed set of tools (template, shell, query, patch, ai, prompt, install,
ensure-dirs, recipe, sequence, parallel, conditional).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "project directory (default: current directory)")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("recipe {{.Version}}\n")
}

// getWorkDir returns the effective project directory.
func getWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}

// ExitCodeFor implements §6's exit-code contract: 0 success (never reaches
// here), 2 when Pass 1 deferred on unanswered `@ai` blocks, 1 otherwise.
func ExitCodeFor(err error) int {
	var rerr *rerrors.RecipeError
	if errors.As(err, &rerr) && rerr.Code == rerrors.CodeAIPass1Deferred {
		return 2
	}
	return 1
}
