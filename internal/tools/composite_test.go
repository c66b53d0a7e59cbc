package tools

import (
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/recipe"
)

func TestSequenceToolRunsStepsInDeclaredOrderAndChainsOutputs(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "pipeline",
		Tool: recipe.ToolSequence,
		Sequence: &recipe.SequenceConfig{
			Steps: []*recipe.Step{
				{Name: "one", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{
					Command: "echo -n first", CaptureOutput: true,
				}},
				{Name: "two", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{
					Command: "echo -n {{ .steps.one.output.stdout }}-second", CaptureOutput: true,
				}},
			},
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["pipeline"])
	}
	toolResult := run.StepResults["pipeline"].ToolResult.(map[string]*recipe.StepResult)
	two := toolResult["two"]
	if two == nil {
		t.Fatal("expected sub-step result for 'two'")
	}
	twoOut := two.Output.(map[string]any)
	if twoOut["stdout"] != "first-second" {
		t.Fatalf("expected second sub-step to see the first's output, got %v", twoOut["stdout"])
	}
}

func TestSequenceToolStopsOnFailureWithoutContinueOnError(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "pipeline",
		Tool: recipe.ToolSequence,
		Sequence: &recipe.SequenceConfig{
			Steps: []*recipe.Step{
				{Name: "boom", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "exit 1"}},
				{Name: "never", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "echo should-not-run"}},
			},
		},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected sequence to fail when a non-continue-on-error sub-step fails")
	}
}

func TestSequenceToolEnvIsScopedFromParent(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "pipeline",
		Tool: recipe.ToolSequence,
		Sequence: &recipe.SequenceConfig{
			Steps: []*recipe.Step{
				{Name: "inner", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{
					Command: "echo -n inner-ran", CaptureOutput: true,
				}},
			},
		},
	}
	after := &recipe.Step{Name: "after", Tool: recipe.ToolShell, DependsOn: []string{"pipeline"}, Shell: &recipe.ShellConfig{
		Command: "echo -n {{ .steps.inner.output.stdout }}", CaptureOutput: true,
	}}
	run := runSteps(t, dir, []*recipe.Step{step, after}, nil)
	if run.Success {
		t.Fatal("expected the parent recipe not to see the inner group's scoped step output")
	}
}

func TestParallelToolRunsAllStepsEvenWhenOneFails(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "fanout",
		Tool: recipe.ToolParallel,
		Parallel: &recipe.ParallelConfig{
			Steps: []*recipe.Step{
				{Name: "a", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "exit 1"}, ContinueOnError: true},
				{Name: "b", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "echo -n ok", CaptureOutput: true}},
			},
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success since the failing sub-step has continueOnError, got %+v", run.StepResults["fanout"])
	}
	toolResult := run.StepResults["fanout"].ToolResult.(map[string]*recipe.StepResult)
	if toolResult["b"].Status != recipe.StepCompleted {
		t.Fatalf("expected sibling 'b' to still run to completion, got %+v", toolResult["b"])
	}
}

func TestConditionalToolSelectsThenBranch(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "branch",
		Tool: recipe.ToolConditional,
		Conditional: &recipe.ConditionalConfig{
			If:   "enabled",
			Then: []*recipe.Step{{Name: "then-step", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "echo then"}}},
			Else: []*recipe.Step{{Name: "else-step", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "echo else"}}},
		},
	}
	run := runOneStep(t, dir, step, map[string]any{"enabled": true})
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["branch"])
	}
	out := run.StepResults["branch"].Output.(map[string]any)
	if out["branch"] != "then" {
		t.Fatalf("expected the then branch to be selected, got %v", out["branch"])
	}
}

func TestConditionalToolEmptyBranchIsNoOp(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "branch",
		Tool: recipe.ToolConditional,
		Conditional: &recipe.ConditionalConfig{
			If:   "enabled",
			Then: []*recipe.Step{{Name: "then-step", Tool: recipe.ToolShell, Shell: &recipe.ShellConfig{Command: "echo then"}}},
		},
	}
	run := runOneStep(t, dir, step, map[string]any{"enabled": false})
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["branch"])
	}
	out := run.StepResults["branch"].Output.(map[string]any)
	if out["branch"] != "else" {
		t.Fatalf("expected the absent else branch to still report branch=else, got %v", out["branch"])
	}
}

func TestRecipeToolRunsSubRecipeAndFlattensResults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub.yaml"), `
name: sub
variables:
  who:
    type: string
    default: world
steps:
  - name: greet
    tool: shell
    command: echo -n hello, {{ .who }}
    captureOutput: true
`)

	step := &recipe.Step{
		Name:   "invoke",
		Tool:   recipe.ToolRecipe,
		Recipe: &recipe.RecipeStepConfig{Path: "sub.yaml"},
	}
	run := runOneStep(t, dir, step, map[string]any{"who": "tester"})
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["invoke"])
	}
	flattened := run.StepResults["invoke"].ToolResult.(map[string]*recipe.StepResult)
	greet, ok := flattened["invoke/greet"]
	if !ok {
		t.Fatalf("expected flattened sub-recipe result keyed invoke/greet, got keys %v", keysOf(flattened))
	}
	greetOut := greet.Output.(map[string]any)
	if greetOut["stdout"] != "hello, tester" {
		t.Fatalf("expected sub-recipe variable to resolve from the parent's inputs, got %v", greetOut["stdout"])
	}
}

func keysOf(m map[string]*recipe.StepResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
