package tools

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/recipe-core/engine/internal/recipe"
)

func TestShellToolCapturesStdout(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "echo",
		Tool: recipe.ToolShell,
		Shell: &recipe.ShellConfig{
			Command:       "echo -n {{ .greeting }}",
			CaptureOutput: true,
		},
	}
	run := runOneStep(t, dir, step, map[string]any{"greeting": "hi there"})
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["echo"])
	}
	result := run.StepResults["echo"]
	out, ok := result.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected map output, got %T", result.Output)
	}
	if out["stdout"] != "hi there" {
		t.Fatalf("expected captured stdout %q, got %v", "hi there", out["stdout"])
	}
	if out["exitCode"] != 0 {
		t.Fatalf("expected exit code 0, got %v", out["exitCode"])
	}
}

func TestShellToolReportsNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "fail",
		Tool: recipe.ToolShell,
		Shell: &recipe.ShellConfig{
			Command: "exit 3",
		},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected run to fail on non-zero exit")
	}
	if run.StepResults["fail"].Error == nil {
		t.Fatal("expected a recorded step error")
	}
}

func TestShellToolTimesOut(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name: "slow",
		Tool: recipe.ToolShell,
		Shell: &recipe.ShellConfig{
			Command: "sleep 5",
			Timeout: 50 * time.Millisecond,
		},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected timeout to fail the step")
	}
}

func TestShellToolRunsInConfiguredCwd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "marker"), "")
	step := &recipe.Step{
		Name: "pwd",
		Tool: recipe.ToolShell,
		Shell: &recipe.ShellConfig{
			Command:       "pwd",
			Cwd:           "sub",
			CaptureOutput: true,
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["pwd"])
	}
	out := run.StepResults["pwd"].Output.(map[string]any)
	if stdout, _ := out["stdout"].(string); filepath.Base(stdout) != "sub" {
		t.Fatalf("expected the command to run in the configured cwd, got %v", out["stdout"])
	}
}
