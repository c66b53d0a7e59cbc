package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/aicore"
	"github.com/recipe-core/engine/internal/config"
	"github.com/recipe-core/engine/internal/recipe"
)

// testLogger discards everything; tests only care about StepResults.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// runOneStep builds a registry around a fresh project directory and runs a
// single-step recipe through the real Group Executor, the same path
// production code uses, so tool behavior is exercised end to end rather
// than by poking unexported fields.
func runOneStep(t *testing.T, projectDir string, step *recipe.Step, vars map[string]any) *recipe.RunResult {
	t.Helper()
	return runSteps(t, projectDir, []*recipe.Step{step}, vars)
}

func runSteps(t *testing.T, projectDir string, steps []*recipe.Step, vars map[string]any) *recipe.RunResult {
	t.Helper()
	return runWithOptions(t, projectDir, steps, vars, recipe.RunOptions{ProjectRoot: projectDir, RecipeVars: vars})
}

// runDryStep runs a single step with RunOptions.DryRun set, for tools whose
// dry-run path reports what it would do without touching the filesystem or
// spawning a subprocess.
func runDryStep(t *testing.T, projectDir string, step *recipe.Step, vars map[string]any) *recipe.RunResult {
	t.Helper()
	return runWithOptions(t, projectDir, []*recipe.Step{step}, vars, recipe.RunOptions{ProjectRoot: projectDir, RecipeVars: vars, DryRun: true})
}

func runWithOptions(t *testing.T, projectDir string, steps []*recipe.Step, vars map[string]any, opts recipe.RunOptions) *recipe.RunResult {
	t.Helper()
	cfg := config.Default()
	registry := NewRegistry(Dependencies{
		Config:     cfg,
		ProjectDir: projectDir,
		Loader:     recipe.NewLoader(filepath.Join(projectDir, "kits")),
		Collector:  aicore.NewCollector(false),
	})
	ge := recipe.NewGroupExecutor(registry, testLogger{})
	rec := &recipe.Recipe{Name: "test", Steps: steps}
	env := recipe.NewEnvironment(nil, vars)
	run, err := ge.Execute(context.Background(), rec, env, opts)
	if err != nil {
		t.Fatalf("unexpected Execute error: %v", err)
	}
	return run
}
