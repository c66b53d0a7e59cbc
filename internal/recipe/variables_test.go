package recipe

import "testing"

type stubPrompter struct {
	answers map[string]string
}

func (s stubPrompter) Prompt(name string, def VariableDef) (string, error) {
	return s.answers[name], nil
}

func TestResolveVariablesPrecedence(t *testing.T) {
	defs := map[string]VariableDef{
		"name": {Type: VarString, Default: "fallback"},
		"port": {Type: VarNumber, Required: true},
	}
	bound, err := ResolveVariables(defs, map[string]any{"name": "override", "port": "8080"}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bound["name"] != "override" {
		t.Fatalf("expected CLI input to override default, got %v", bound["name"])
	}
	if bound["port"] != float64(8080) {
		t.Fatalf("expected port coerced to number, got %v (%T)", bound["port"], bound["port"])
	}
}

func TestResolveVariablesMissingRequiredNonInteractive(t *testing.T) {
	defs := map[string]VariableDef{"token": {Type: VarString, Required: true}}
	if _, err := ResolveVariables(defs, nil, false, nil); err == nil {
		t.Fatal("expected missing required variable to error when non-interactive")
	}
}

func TestResolveVariablesPromptsWhenInteractive(t *testing.T) {
	defs := map[string]VariableDef{"token": {Type: VarString, Required: true}}
	prompter := stubPrompter{answers: map[string]string{"token": "secret"}}
	bound, err := ResolveVariables(defs, nil, true, prompter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bound["token"] != "secret" {
		t.Fatalf("expected prompted answer to be bound, got %v", bound["token"])
	}
}

func TestResolveVariablesEnumValidation(t *testing.T) {
	defs := map[string]VariableDef{
		"env": {Type: VarEnum, Values: []string{"dev", "prod"}},
	}
	if _, err := ResolveVariables(defs, map[string]any{"env": "staging"}, false, nil); err == nil {
		t.Fatal("expected value outside enum values to fail validation")
	}
}

func TestResolveVariablesPatternValidation(t *testing.T) {
	defs := map[string]VariableDef{
		"slug": {Type: VarString, Pattern: `^[a-z0-9-]+$`},
	}
	if _, err := ResolveVariables(defs, map[string]any{"slug": "Not Valid!"}, false, nil); err == nil {
		t.Fatal("expected pattern mismatch to fail validation")
	}
	bound, err := ResolveVariables(defs, map[string]any{"slug": "valid-slug"}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error for valid slug: %v", err)
	}
	if bound["slug"] != "valid-slug" {
		t.Fatalf("expected slug to be bound, got %v", bound["slug"])
	}
}

func TestResolveVariablesArrayJSONCoercion(t *testing.T) {
	defs := map[string]VariableDef{"tags": {Type: VarArray}}
	bound, err := ResolveVariables(defs, map[string]any{"tags": `["a","b"]`}, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags, ok := bound["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("expected decoded 2-element array, got %v (%T)", bound["tags"], bound["tags"])
	}
}
