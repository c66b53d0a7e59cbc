package recipe

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStepUnmarshalSelectsToolSpecificConfig(t *testing.T) {
	var step Step
	src := `
name: write-readme
tool: template
template: README.md.tmpl
variables:
  project: widget
`
	if err := yaml.Unmarshal([]byte(src), &step); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Template == nil {
		t.Fatal("expected Template config to be populated")
	}
	if step.Shell != nil || step.Query != nil {
		t.Fatal("expected only the matching tool config to be populated")
	}
	if step.Template.Path != "README.md.tmpl" {
		t.Fatalf("expected template path decoded, got %+v", step.Template)
	}
}

func TestStepUnmarshalUnknownToolLeavesConfigsUnsetForValidateToReport(t *testing.T) {
	var step Step
	src := `
name: mystery
tool: not-a-real-tool
`
	if err := yaml.Unmarshal([]byte(src), &step); err != nil {
		t.Fatalf("expected unmarshal of an unknown tool kind not to error, got: %v", err)
	}
	if err := step.Validate(); err == nil {
		t.Fatal("expected Validate to reject the unknown tool kind")
	}
}

func TestStepMarshalRoundTripsFlatWireShape(t *testing.T) {
	original := &Step{
		Name:      "run-tests",
		Tool:      ToolShell,
		DependsOn: []string{"build"},
		Shell:     &ShellConfig{Command: "go test ./...", CaptureOutput: true},
	}

	b, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	var decoded Step
	if err := yaml.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded.Name != original.Name || decoded.Tool != original.Tool {
		t.Fatalf("expected common fields to round-trip, got %+v", decoded)
	}
	if decoded.Shell == nil || decoded.Shell.Command != original.Shell.Command {
		t.Fatalf("expected shell config to round-trip, got %+v", decoded.Shell)
	}
	if len(decoded.DependsOn) != 1 || decoded.DependsOn[0] != "build" {
		t.Fatalf("expected dependsOn to round-trip, got %v", decoded.DependsOn)
	}
}

func TestRecipeUnmarshalParsesMultipleStepKinds(t *testing.T) {
	src := `
name: scaffold
steps:
  - name: make-dirs
    tool: ensure-dirs
    dirs: ["src", "test"]
  - name: render
    tool: template
    template: main.go.tmpl
  - name: install-deps
    tool: install
    dependsOn: [render]
    packages: ["left-pad"]
    manager: npm
`
	var rec Recipe
	if err := yaml.Unmarshal([]byte(src), &rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(rec.Steps))
	}
	if rec.Steps[0].EnsureDirs == nil || rec.Steps[1].Template == nil || rec.Steps[2].Install == nil {
		t.Fatalf("expected each step to decode its own tool-specific config, got %+v", rec.Steps)
	}
}
