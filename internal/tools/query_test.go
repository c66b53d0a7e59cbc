package tools

import (
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/recipe"
)

func TestQueryToolExportsAndExportExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pkg.json"), `{"name": "widget", "scripts": {"build": "tsc"}, "private": false}`)

	step := &recipe.Step{
		Name: "inspect",
		Tool: recipe.ToolQuery,
		Query: &recipe.QueryConfig{
			File: "pkg.json",
			Checks: []recipe.QueryCheck{
				{Path: "name", Export: "pkgName"},
				{Path: "scripts.build", ExportExists: "hasBuildScript"},
				{Path: "scripts.test", ExportExists: "hasTestScript"},
				{Path: "private", ExportExists: "isPrivateTruthy"},
			},
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["inspect"])
	}
	out := run.StepResults["inspect"].Output.(map[string]any)
	if out["pkgName"] != "widget" {
		t.Fatalf("expected exported name, got %v", out["pkgName"])
	}
	if out["hasBuildScript"] != true {
		t.Fatalf("expected hasBuildScript true, got %v", out["hasBuildScript"])
	}
	if out["hasTestScript"] != false {
		t.Fatalf("expected hasTestScript false for an absent path, got %v", out["hasTestScript"])
	}
	if out["isPrivateTruthy"] != false {
		t.Fatalf("expected exportExists false when the value is boolean false, got %v", out["isPrivateTruthy"])
	}
}

func TestQueryToolEvaluatesExpression(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "state.yaml"), "count: 4\n")

	step := &recipe.Step{
		Name: "check",
		Tool: recipe.ToolQuery,
		Query: &recipe.QueryConfig{
			File:       "state.yaml",
			Expression: "data.count > 2",
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["check"])
	}
	out := run.StepResults["check"].Output.(map[string]any)
	if out["value"] != true {
		t.Fatalf("expected expression value true, got %v", out["value"])
	}
}

func TestQueryToolParsesEnvFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "vars.env"), "# comment\nFOO=bar\nBAZ=\"quoted\"\n")

	step := &recipe.Step{
		Name: "env",
		Tool: recipe.ToolQuery,
		Query: &recipe.QueryConfig{
			File: "vars.env",
			Checks: []recipe.QueryCheck{
				{Path: "FOO", Export: "foo"},
				{Path: "BAZ", Export: "baz"},
			},
		},
	}
	run := runOneStep(t, dir, step, nil)
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["env"])
	}
	out := run.StepResults["env"].Output.(map[string]any)
	if out["foo"] != "bar" || out["baz"] != "quoted" {
		t.Fatalf("unexpected env-parsed values: %+v", out)
	}
}

func TestQueryToolFailsOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	step := &recipe.Step{
		Name:  "missing",
		Tool:  recipe.ToolQuery,
		Query: &recipe.QueryConfig{File: "does-not-exist.json"},
	}
	run := runOneStep(t, dir, step, nil)
	if run.Success {
		t.Fatal("expected a missing query file to fail the step")
	}
}
