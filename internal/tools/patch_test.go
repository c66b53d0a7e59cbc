package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/recipe"
)

func TestPatchToolInjectsAtEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "list.txt"), "a\nb\n")

	step := &recipe.Step{
		Name: "append",
		Tool: recipe.ToolPatch,
		Patch: &recipe.PatchConfig{
			Target:  "list.txt",
			At:      "end",
			Content: "c",
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["append"])
	}
	out, _ := os.ReadFile(filepath.Join(dir, "list.txt"))
	if string(out) != "a\nb\n\nc" {
		t.Fatalf("unexpected file content: %q", out)
	}
}

func TestPatchToolSkipsWhenSkipIfMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.txt"), "existing-marker\n")

	step := &recipe.Step{
		Name: "patch",
		Tool: recipe.ToolPatch,
		Patch: &recipe.PatchConfig{
			Target:  "config.txt",
			At:      "end",
			Content: "existing-marker",
			SkipIf:  "existing-marker",
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["patch"])
	}
	if len(run.StepResults["patch"].FilesModified) != 0 {
		t.Fatal("expected skip_if match to report no file modification")
	}
}

func TestPatchToolFailsWhenAnchorNotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file.txt"), "nothing special\n")

	step := &recipe.Step{
		Name: "patch",
		Tool: recipe.ToolPatch,
		Patch: &recipe.PatchConfig{
			Target:  "file.txt",
			After:   "NO_SUCH_ANCHOR",
			Content: "x",
		},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected a missing anchor to fail the step")
	}
}
