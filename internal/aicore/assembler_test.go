package aicore

import (
	"strings"
	"testing"
)

func TestAssembleEmptyCollectorProducesBareTitleOnly(t *testing.T) {
	c := NewCollector(true)
	doc := Assemble(c, AssembleOptions{})
	if !strings.HasPrefix(doc, "# AI Answers Needed\n\n") {
		t.Fatalf("expected the default title heading, got %q", doc)
	}
	if strings.Contains(doc, "## Prompts") {
		t.Fatal("expected no Prompts section when nothing was collected")
	}
}

func TestAssembleIncludesGlobalAndPerKeyContext(t *testing.T) {
	c := NewCollector(true)
	c.AddContext("", "shared background")
	c.RegisterAiBlock("greeting", "write a greeting", "", nil)
	c.AddContext("greeting", "tone should be formal")

	doc := Assemble(c, AssembleOptions{Title: "Custom Title"})
	if !strings.HasPrefix(doc, "# Custom Title\n\n") {
		t.Fatalf("expected the custom title, got %q", doc)
	}
	if !strings.Contains(doc, "## Context") || !strings.Contains(doc, "### Global Context") {
		t.Fatal("expected a Context section with a Global Context subsection")
	}
	if !strings.Contains(doc, "shared background") {
		t.Fatal("expected the global context text to appear")
	}
	if !strings.Contains(doc, "### Context for `greeting`") || !strings.Contains(doc, "tone should be formal") {
		t.Fatal("expected the per-key context section to appear")
	}
}

func TestAssembleOmitsContextSectionWhenNoneRegistered(t *testing.T) {
	c := NewCollector(true)
	c.RegisterAiBlock("greeting", "write a greeting", "", nil)

	doc := Assemble(c, AssembleOptions{})
	if strings.Contains(doc, "## Context") {
		t.Fatal("expected no Context section when no contexts were registered")
	}
}

func TestAssembleListsPromptsAndResponseFormatKeys(t *testing.T) {
	c := NewCollector(true)
	c.RegisterAiBlock("title", "pick a title", "", nil)
	c.RegisterAiBlock("summary", "write a summary", "two sentences", []string{"ex"})

	doc := Assemble(c, AssembleOptions{})
	if !strings.Contains(doc, "### `title`") || !strings.Contains(doc, "pick a title") {
		t.Fatal("expected the title prompt to be rendered")
	}
	if !strings.Contains(doc, "### `summary`") || !strings.Contains(doc, "**Expected output format:** two sentences") {
		t.Fatal("expected the summary prompt with its output format note")
	}
	if !strings.Contains(doc, `"title": "<your answer>"`) {
		t.Fatal("expected a plain placeholder for a prompt with no output description or examples")
	}
	if !strings.Contains(doc, `"summary": "<see format above>"`) {
		t.Fatal("expected a see-format placeholder for a prompt with an output description")
	}
}

func TestAssembleInstructionsUseCustomAnswersPathAndCommand(t *testing.T) {
	c := NewCollector(true)
	c.RegisterAiBlock("k", "p", "", nil)

	doc := Assemble(c, AssembleOptions{OriginalCommand: "recipe run build.yaml", AnswersPath: "out/answers.json"})
	if !strings.Contains(doc, "out/answers.json") {
		t.Fatal("expected the custom answers path in the instructions")
	}
	if !strings.Contains(doc, "recipe run build.yaml --answers out/answers.json") {
		t.Fatalf("expected the re-run command with --answers appended, got %q", doc)
	}
}

func TestAssembleDefaultsAnswersPathAndCommandWhenUnset(t *testing.T) {
	c := NewCollector(true)
	c.RegisterAiBlock("k", "p", "", nil)

	doc := Assemble(c, AssembleOptions{})
	if !strings.Contains(doc, "answers.json") {
		t.Fatal("expected the default answers.json path")
	}
	if !strings.Contains(doc, "recipe run --answers answers.json") {
		t.Fatalf("expected the default command in the instructions, got %q", doc)
	}
}
