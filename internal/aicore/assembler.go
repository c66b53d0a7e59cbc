package aicore

import (
	"fmt"
	"strings"

	"github.com/recipe-core/engine/internal/recipe"
)

// AssembleOptions configures the Prompt Assembler's document (§4.6.3).
type AssembleOptions struct {
	Title           string
	OriginalCommand string
	AnswersPath     string
}

// Assemble builds the Pass-1 markdown document handed to the operator when
// the AI subsystem defers (stdout mode, or api/command mode with unresolved
// `@ai` blocks). Sections are emitted in order, each suppressed if empty.
func Assemble(collector *Collector, opts AssembleOptions) string {
	entries := collector.GetEntries()
	globals := collector.GlobalContexts()

	var b strings.Builder

	title := opts.Title
	if title == "" {
		title = "AI Answers Needed"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if len(globals) > 0 || anyHasContext(entries) {
		b.WriteString("## Context\n\n")
		if len(globals) > 0 {
			b.WriteString("### Global Context\n\n")
			for _, g := range globals {
				b.WriteString(g)
				b.WriteString("\n\n")
			}
		}
		for _, e := range entries {
			if len(e.Contexts) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### Context for `%s`\n\n", e.Key)
			for _, c := range e.Contexts {
				b.WriteString(c)
				b.WriteString("\n\n")
			}
		}
	}

	if len(entries) > 0 {
		b.WriteString("## Prompts\n\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "### `%s`\n\n", e.Key)
			b.WriteString(e.Prompt)
			b.WriteString("\n\n")
			if e.OutputDescription != "" {
				fmt.Fprintf(&b, "**Expected output format:** %s\n\n", e.OutputDescription)
			}
		}

		b.WriteString("## Response Format\n\n```json\n{\n")
		for i, e := range entries {
			val := `"<your answer>"`
			if e.OutputDescription != "" || len(e.Examples) > 0 {
				val = `"<see format above>"`
			}
			comma := ","
			if i == len(entries)-1 {
				comma = ""
			}
			fmt.Fprintf(&b, "  %q: %s%s\n", e.Key, val, comma)
		}
		b.WriteString("}\n```\n\n")

		answersPath := opts.AnswersPath
		if answersPath == "" {
			answersPath = "answers.json"
		}
		cmd := opts.OriginalCommand
		if cmd == "" {
			cmd = "recipe run"
		}
		b.WriteString("## Instructions\n\n")
		fmt.Fprintf(&b, "Save your answers as a JSON object to `%s`, then re-run:\n\n```\n%s --answers %s\n```\n", answersPath, cmd, answersPath)
	}

	return b.String()
}

func anyHasContext(entries []recipe.AiBlockEntry) bool {
	for _, e := range entries {
		if len(e.Contexts) > 0 {
			return true
		}
	}
	return false
}
