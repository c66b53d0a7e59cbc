package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/recipe-core/engine/internal/config"
	"github.com/recipe-core/engine/internal/recipe"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <recipe-file>",
	Short: "Parse and validate a recipe document without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	recipePath := args[0]

	dir, err := getWorkDir()
	if err != nil {
		return err
	}
	if !filepath.IsAbs(recipePath) {
		recipePath = filepath.Join(dir, recipePath)
	}

	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	loader := recipe.NewLoader(cfg.KitDir(dir))
	loaded, err := loader.LoadRecipe(recipePath)
	if err != nil {
		return err
	}

	fmt.Printf("%s: valid (%d steps)\n", loaded.Recipe.Name, len(loaded.Recipe.Steps))
	for _, diag := range loaded.Diagnostics {
		fmt.Println("  warning:", diag)
	}
	return nil
}
