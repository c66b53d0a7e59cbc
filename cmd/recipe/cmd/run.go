package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/recipe-core/engine/internal/aicore"
	"github.com/recipe-core/engine/internal/cli"
	"github.com/recipe-core/engine/internal/config"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/logging"
	"github.com/recipe-core/engine/internal/recipe"
	"github.com/recipe-core/engine/internal/tools"
	"github.com/spf13/cobra"
)

var (
	runDry           bool
	runForce         bool
	runNonInteractive bool
	runVars          []string
	runVarsJSON      []string
	runAnswers       string
)

var runCmd = &cobra.Command{
	Use:   "run <recipe-file>",
	Short: "Run a recipe document",
	Long: `Load a recipe document, resolve its variables, and run its steps to
completion through the Group Executor.

Examples:
  recipe run recipe.yaml --var name=widget
  recipe run recipe.yaml --var-json config={"debug":true}
  recipe run recipe.yaml --dry-run
  recipe run recipe.yaml --answers answers.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "validate and show what would happen without writing")
	runCmd.Flags().BoolVar(&runForce, "force", false, "overwrite existing files that template steps would otherwise refuse to replace")
	runCmd.Flags().BoolVar(&runNonInteractive, "non-interactive", false, "fail instead of prompting for missing variables")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "variable value (format: name=value)")
	runCmd.Flags().StringArrayVar(&runVarsJSON, "var-json", nil, "variable with a JSON value (format: name={...} or name=[...])")
	runCmd.Flags().StringVar(&runAnswers, "answers", "", "answers file for `@ai` blocks collected by a prior stdout-mode run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	logger, closer, err := logging.NewFromConfig(cfg, dir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	loader := recipe.NewLoader(cfg.KitDir(dir))
	loaded, err := loader.LoadRecipe(recipePath)
	if err != nil {
		return err
	}
	for _, diag := range loaded.Diagnostics {
		logger.Warn(diag)
	}
	rec := loaded.Recipe

	cliInputs, err := parseVarFlags(runVars, runVarsJSON)
	if err != nil {
		return err
	}

	answers, collectMode, err := loadAnswers(runAnswers)
	if err != nil {
		return err
	}

	interactive := cfg.Defaults.Interactive && !runNonInteractive
	var prompter recipe.Prompter
	if interactive {
		prompter = cli.VarPrompter{}
	}
	bound, err := recipe.ResolveVariables(rec.Variables, cliInputs, interactive, prompter)
	if err != nil {
		return err
	}

	env := recipe.NewEnvironment(nil, bound)
	collector := aicore.NewCollector(collectMode)
	pipeline := aicore.NewPipeline(cfg, dir, os.Stdout)

	registry := tools.NewRegistry(tools.Dependencies{
		Config:     cfg,
		ProjectDir: dir,
		Loader:     loader,
		AI:         pipeline,
		Collector:  collector,
	})

	ge := recipe.NewGroupExecutor(registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nreceived shutdown signal, stopping...")
		cancel()
	}()

	run, err := ge.Execute(ctx, rec, env, recipe.RunOptions{
		ProjectRoot:  dir,
		RecipeVars:   bound,
		DryRun:       runDry,
		Force:        runForce,
		CollectMode:  collectMode,
		Answers:      answers,
		TemplatePath: recipePath,
	})
	if err != nil {
		return err
	}

	if collector.HasEntries() {
		doc := aicore.Assemble(collector, aicore.AssembleOptions{
			Title:           fmt.Sprintf("AI prompts for %s", rec.Name),
			OriginalCommand: fmt.Sprintf("recipe run %s", args[0]),
			AnswersPath:     answersPathSuggestion(runAnswers),
		})
		fmt.Println(doc)
		return rerrors.AIPass1Deferred()
	}

	printRunSummary(run)

	if !run.Success {
		return firstStepError(run)
	}
	return nil
}

// parseVarFlags parses --var name=value and --var-json name={...} flags
// into one merged variables map, JSON values taking precedence when a name
// is given in both.
func parseVarFlags(vars, varsJSON []string) (map[string]any, error) {
	out := make(map[string]any, len(vars)+len(varsJSON))
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --var %q (expected name=value)", v)
		}
		out[parts[0]] = parts[1]
	}
	for _, v := range varsJSON {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --var-json %q (expected name={...})", v)
		}
		var decoded any
		if err := json.Unmarshal([]byte(parts[1]), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON for --var-json %s: %w", parts[0], err)
		}
		out[parts[0]] = decoded
	}
	return out, nil
}

// loadAnswers reads an answers file (written by the operator after a prior
// stdout-mode Pass 1 run). Absent path means this run is Pass 1: collect
// `@ai` blocks instead of answering them.
func loadAnswers(path string) (map[string]string, bool, error) {
	if path == "" {
		return nil, true, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading answers file: %w", err)
	}
	var answers map[string]string
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, false, fmt.Errorf("parsing answers file: %w", err)
	}
	return answers, false, nil
}

func answersPathSuggestion(given string) string {
	if given != "" {
		return given
	}
	return "answers.json"
}

func printRunSummary(run *recipe.RunResult) {
	status := "completed"
	if !run.Success {
		status = "failed"
	}
	fmt.Printf("\nrun %s in %dms\n", status, run.DurationMs)
	if len(run.FilesCreated) > 0 {
		fmt.Printf("created: %s\n", strings.Join(run.FilesCreated, ", "))
	}
	if len(run.FilesModified) > 0 {
		fmt.Printf("modified: %s\n", strings.Join(run.FilesModified, ", "))
	}
	if run.CostReport != nil && run.CostReport.TotalCostUsd > 0 {
		fmt.Printf("ai cost: $%.4f\n", run.CostReport.TotalCostUsd)
	}
	for name, result := range run.StepResults {
		if result.Status == recipe.StepFailed {
			fmt.Printf("step %s failed: %s\n", name, result.Error.Message)
		}
	}
}

func firstStepError(run *recipe.RunResult) error {
	for name, result := range run.StepResults {
		if result.Status == recipe.StepFailed {
			return fmt.Errorf("step %q failed: %s", name, result.Error.Message)
		}
	}
	return fmt.Errorf("recipe run did not complete successfully")
}
