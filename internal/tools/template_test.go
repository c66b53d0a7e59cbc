package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/recipe"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTemplateToolCreatesFileFromFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "greeting.tmpl"), "---\nto: out/{{ .name }}.txt\n---\nhello, {{ .name }}!")

	step := &recipe.Step{
		Name:     "render",
		Tool:     recipe.ToolTemplate,
		Template: &recipe.TemplateConfig{Path: "greeting.tmpl"},
	}
	run := runOneStep(t, dir, step, map[string]any{"name": "world"})
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["render"])
	}

	out, err := os.ReadFile(filepath.Join(dir, "out", "world.txt"))
	if err != nil {
		t.Fatalf("expected rendered file to exist: %v", err)
	}
	if string(out) != "hello, world!" {
		t.Fatalf("unexpected rendered content: %q", out)
	}
}

func TestTemplateToolUnlessExistsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "once.tmpl"), "---\nto: out.txt\nunless_exists: true\n---\nfirst")

	step := &recipe.Step{
		Name:     "render",
		Tool:     recipe.ToolTemplate,
		Template: &recipe.TemplateConfig{Path: "once.tmpl"},
	}

	run1 := runOneStep(t, dir, step, nil)
	if !run1.Success {
		t.Fatalf("first run expected success: %+v", run1.StepResults["render"])
	}
	out, _ := os.ReadFile(filepath.Join(dir, "out.txt"))
	if string(out) != "first" {
		t.Fatalf("unexpected first-run content: %q", out)
	}

	// Re-render the template as though it changed; unless_exists must make
	// the second run a no-op rather than overwriting the file.
	writeFile(t, filepath.Join(dir, "once.tmpl"), "---\nto: out.txt\nunless_exists: true\n---\nsecond")
	run2 := runOneStep(t, dir, step, nil)
	if !run2.Success {
		t.Fatalf("second run expected success: %+v", run2.StepResults["render"])
	}
	out, _ = os.ReadFile(filepath.Join(dir, "out.txt"))
	if string(out) != "first" {
		t.Fatalf("expected existing file left untouched, got %q", out)
	}
}

func TestTemplateToolRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "out.txt"), "existing")
	writeFile(t, filepath.Join(dir, "greeting.tmpl"), "---\nto: out.txt\n---\nnew content")

	step := &recipe.Step{
		Name:     "render",
		Tool:     recipe.ToolTemplate,
		Template: &recipe.TemplateConfig{Path: "greeting.tmpl"},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected run to fail when target exists and force is not set")
	}
}

func TestTemplateToolInjectsAfterAnchor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "routes.go"), "package main\n// ROUTES\nfunc main() {}\n")
	writeFile(t, filepath.Join(dir, "route.tmpl"), "---\nto: routes.go\ninject: true\nafter: ROUTES\n---\n// new route")

	step := &recipe.Step{
		Name:     "inject",
		Tool:     recipe.ToolTemplate,
		Template: &recipe.TemplateConfig{Path: "route.tmpl"},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected injection to succeed: %+v", run.StepResults["inject"])
	}
	out, _ := os.ReadFile(filepath.Join(dir, "routes.go"))
	want := "package main\n// ROUTES\n// new route\nfunc main() {}\n"
	if string(out) != want {
		t.Fatalf("unexpected file after injection:\n%q\nwant:\n%q", out, want)
	}
}
