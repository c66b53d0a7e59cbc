package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/recipe-core/engine/internal/aicore"
	"github.com/recipe-core/engine/internal/config"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

func TestAIToolWithoutProviderErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	registry := NewRegistry(Dependencies{
		Config:     cfg,
		ProjectDir: dir,
		Loader:     recipe.NewLoader(filepath.Join(dir, "kits")),
		Collector:  aicore.NewCollector(false),
		// AI left nil: the tool must refuse rather than panic on a nil pipeline.
	})
	ge := recipe.NewGroupExecutor(registry, testLogger{})
	rec := &recipe.Recipe{
		Name: "test",
		Steps: []*recipe.Step{
			{Name: "generate", Tool: recipe.ToolAI, AI: &recipe.AIStepConfig{
				Prompt: "write a haiku",
				Output: recipe.OutputSpec{Type: "variable", Variable: "poem"},
			}},
		},
	}
	env := recipe.NewEnvironment(nil, nil)
	run, err := ge.Execute(context.Background(), rec, env, recipe.RunOptions{ProjectRoot: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Success {
		t.Fatal("expected the ai tool to fail without a configured provider")
	}
}

func TestAIToolStdoutModeDefersToPassOne(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AI.Mode = "off" // ResolveMode treats "off" as the stdout transport

	tmp, err := os.CreateTemp(dir, "prompt-doc-*.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer tmp.Close()

	registry := NewRegistry(Dependencies{
		Config:     cfg,
		ProjectDir: dir,
		Loader:     recipe.NewLoader(filepath.Join(dir, "kits")),
		AI:         aicore.NewPipeline(cfg, dir, tmp),
		Collector:  aicore.NewCollector(false),
	})
	ge := recipe.NewGroupExecutor(registry, testLogger{})
	rec := &recipe.Recipe{
		Name: "test",
		Steps: []*recipe.Step{
			{Name: "generate", Tool: recipe.ToolAI, AI: &recipe.AIStepConfig{
				Prompt: "describe {{ .topic }}",
				Output: recipe.OutputSpec{Type: "variable", Variable: "text"},
			}},
		},
	}
	env := recipe.NewEnvironment(nil, map[string]any{"topic": "widgets"})
	run, err := ge.Execute(context.Background(), rec, env, recipe.RunOptions{ProjectRoot: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Success {
		t.Fatal("expected stdout-mode deferral to fail the step so the CLI can surface exit code 2")
	}
	stepErr := run.StepResults["generate"].Error
	if stepErr == nil || stepErr.Code != rerrors.CodeAIPass1Deferred {
		t.Fatalf("expected AI_PASS1_DEFERRED error code, got %+v", stepErr)
	}
}

func TestAIToolRoutesOutputToVariable(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.AI.Mode = "command"
	cfg.AI.Providers["anthropic"] = config.AIProviderConfig{Command: "echo -n generated-text"}

	registry := NewRegistry(Dependencies{
		Config:     cfg,
		ProjectDir: dir,
		Loader:     recipe.NewLoader(filepath.Join(dir, "kits")),
		AI:         aicore.NewPipeline(cfg, dir, os.Stdout),
		Collector:  aicore.NewCollector(false),
	})
	ge := recipe.NewGroupExecutor(registry, testLogger{})
	rec := &recipe.Recipe{
		Name: "test",
		Steps: []*recipe.Step{
			{Name: "generate", Tool: recipe.ToolAI, AI: &recipe.AIStepConfig{
				Prompt: "say hi",
				Output: recipe.OutputSpec{Type: "variable", Variable: "text"},
			}},
		},
	}
	env := recipe.NewEnvironment(nil, nil)
	run, err := ge.Execute(context.Background(), rec, env, recipe.RunOptions{ProjectRoot: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Success {
		t.Fatalf("expected success, got %+v", run.StepResults["generate"])
	}
	out := run.StepResults["generate"].Output.(map[string]any)
	if out["text"] != "generated-text" {
		t.Fatalf("expected routed command output, got %v", out["text"])
	}
}
