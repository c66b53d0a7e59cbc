package aicore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/recipe-core/engine/internal/config"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// EstimateTokens approximates a token count as ceil(chars/4), matching
// §4.6.4's "token estimation is approximate" allowance.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// ErrFallback signals that an ai-kind step exhausted retryOnFailure with
// onFailure: fallback — the ai tool treats this as a successful no-op step
// rather than a failure.
var ErrFallback = errors.New("aicore: ai generation fell back after persistent failure")

// Pipeline implements the AI-tool's five-stage prompt pipeline (§4.6.4):
// gather context, build system prompt, build user prompt, generate,
// validate-and-retry. It owns the run's Cost Tracker and the set of
// transports available for the configured execution modes.
type Pipeline struct {
	Config     *config.Config
	Cost       *CostTracker
	Transports map[string]Transport
	ProjectDir string
}

// NewPipeline wires a Pipeline with the api (provider SDKs) and stdout
// (Pass-1 deferral to the given writer) transports; the command
// (subprocess) transport is built per call in Run.
func NewPipeline(cfg *config.Config, projectDir string, stdout *os.File) *Pipeline {
	return &Pipeline{
		Config: cfg,
		Cost:   NewCostTracker(cfg),
		Transports: map[string]Transport{
			"api":    &ApiTransport{Config: cfg},
			"stdout": StdoutTransport{Writer: stdout},
			// "command" is resolved per-call in Run, since its target
			// command is per-provider configuration, not fixed at
			// construction.
		},
		ProjectDir: projectDir,
	}
}

// Run executes the full five-stage pipeline for one ai-kind step, returning
// its generated text. mode is the already-resolved execution mode
// (ResolveMode, or an explicit step override).
func (p *Pipeline) Run(ctx context.Context, ectx *recipe.ExecutionContext, cfg *recipe.AIStepConfig, mode, stepName string) (string, error) {
	transport := p.Transports[mode]
	if mode == "command" {
		pc := p.Config.ProviderConfig(firstNonEmpty(cfg.Provider, p.Config.AI.DefaultProvider))
		transport = CommandTransport{Command: pc.Command}
	}
	if transport == nil {
		return "", rerrors.AITransportFailed(mode, fmt.Errorf("no transport configured for mode %q", mode))
	}

	contextSection, err := p.gatherContext(ectx, cfg.Context, p.Config.AI.MaxContextTokens)
	if err != nil {
		return "", err
	}

	task, err := renderTaskPrompt(cfg.Prompt, ectx)
	if err != nil {
		return "", rerrors.AIGenerationFailed(err)
	}

	system := buildSystemPrompt(cfg)
	userPrompt := buildUserPrompt(contextSection, cfg.Examples, task)

	model := cfg.Model
	if model == "" {
		model = p.Config.ProviderConfig(firstNonEmpty(cfg.Provider, p.Config.AI.DefaultProvider)).Model
	}

	var lastErrs []string
	attempts := 0
	for {
		attempts++

		if mode == "api" {
			estimatedOut := cfg.MaxTokens
			if estimatedOut <= 0 {
				estimatedOut = 1024
			}
			prospective := p.Cost.CalculateCost(model, EstimateTokens(system)+EstimateTokens(userPrompt), estimatedOut)
			if err := p.Cost.CheckBudget(prospective, ectx.Logger); err != nil {
				return "", err
			}
		}

		prompt := userPrompt
		if len(lastErrs) > 0 {
			var fb strings.Builder
			fb.WriteString(userPrompt)
			fb.WriteString("\n\n## Previous Attempt Feedback\n\nThe previous output failed validation:\n")
			for _, e := range lastErrs {
				fmt.Fprintf(&fb, "- %s\n", e)
			}
			fb.WriteString("\nCorrect these issues and try again.")
			prompt = fb.String()
		}

		result, err := transport.Generate(ctx, GenerateRequest{
			Provider:    cfg.Provider,
			Model:       model,
			System:      system,
			Prompt:      prompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			if errors.Is(err, ErrDeferred) {
				return "", err
			}
			return "", p.handleFailure(cfg, err)
		}

		if mode == "api" {
			p.Cost.Record(stepName, model, result.InputTokens, result.OutputTokens, attempts-1)
		}

		if errs := validateOutput(result.Text, cfg); len(errs) > 0 {
			lastErrs = errs
			if attempts-1 < cfg.RetryOnFailure {
				continue
			}
			return "", p.handleFailure(cfg, fmt.Errorf("output failed validation: %s", strings.Join(errs, "; ")))
		}

		return result.Text, nil
	}
}

func (p *Pipeline) handleFailure(cfg *recipe.AIStepConfig, err error) error {
	if cfg.OnFailure == "fallback" {
		return ErrFallback
	}
	// "error" and "retry" both surface the failure: "retry" relies on the
	// Step Executor's own per-step retry loop (§5) for another full attempt
	// rather than a second retry mechanism inside the pipeline.
	return rerrors.AIGenerationFailed(err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// gatherContext implements stage (1): globbed files, explicit includes,
// prior step outputs, and a config subset, joined under a maxTokens budget
// with the configured overflow policy.
func (p *Pipeline) gatherContext(ectx *recipe.ExecutionContext, spec *recipe.ContextSpec, maxTokens int) (string, error) {
	if spec == nil {
		return "", nil
	}

	var sections []string
	used := 0
	overflow := spec.OnOverflow
	if overflow == "" {
		overflow = "truncate"
	}

	add := func(label, text string) error {
		if text == "" {
			return nil
		}
		section := fmt.Sprintf("### %s\n\n%s", label, text)
		tokens := EstimateTokens(section)
		if maxTokens > 0 && used+tokens > maxTokens {
			switch overflow {
			case "error":
				return rerrors.Newf(rerrors.CodeAIGenerationFailed, "context bundle exceeds max_context_tokens (%d)", maxTokens)
			default:
				// "summarize" has no summarization backend wired; both it
				// and "truncate" fall back to a truncated excerpt.
				remainingChars := (maxTokens - used) * 4
				if remainingChars < 0 {
					remainingChars = 0
				}
				if remainingChars < len(section) {
					section = section[:remainingChars] + "\n...(truncated)"
				}
				tokens = EstimateTokens(section)
			}
		}
		sections = append(sections, section)
		used += tokens
		return nil
	}

	for _, pattern := range spec.Globs {
		matches, err := filepath.Glob(filepath.Join(p.ProjectDir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(p.ProjectDir, m)
			if err != nil {
				rel = m
			}
			if err := add(rel, string(data)); err != nil {
				return "", err
			}
		}
	}

	for _, inc := range spec.Include {
		path := inc
		if !filepath.IsAbs(path) {
			path = filepath.Join(p.ProjectDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", rerrors.AIGenerationFailed(fmt.Errorf("reading include %s: %w", inc, err))
		}
		if err := add(inc, string(data)); err != nil {
			return "", err
		}
	}

	for _, stepName := range spec.PriorSteps {
		if r, ok := ectx.StepResultByName(stepName); ok {
			out, _ := json.MarshalIndent(r.Output, "", "  ")
			if err := add("steps."+stepName, string(out)); err != nil {
				return "", err
			}
		}
	}

	if len(spec.ConfigKeys) > 0 {
		subset := make(map[string]any, len(spec.ConfigKeys))
		full := ectx.Env.Context()
		for _, key := range spec.ConfigKeys {
			if v, ok := full[key]; ok {
				subset[key] = v
			}
		}
		out, _ := json.MarshalIndent(subset, "", "  ")
		if err := add("config", string(out)); err != nil {
			return "", err
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

const defaultSystemPrompt = "You are a precise code-generation assistant. Follow the instructions exactly and return only the requested content, with no surrounding commentary."

// buildSystemPrompt implements stage (2): default system prompt + step
// system override + guardrail rules rendered as plain instructions.
func buildSystemPrompt(cfg *recipe.AIStepConfig) string {
	parts := []string{defaultSystemPrompt}
	if cfg.System != "" {
		parts = append(parts, cfg.System)
	}
	if cfg.Guardrails != nil {
		var g strings.Builder
		if len(cfg.Guardrails.AllowedImports) > 0 {
			fmt.Fprintf(&g, "Only import from: %s.\n", strings.Join(cfg.Guardrails.AllowedImports, ", "))
		}
		if len(cfg.Guardrails.BlockedImports) > 0 {
			fmt.Fprintf(&g, "Never import from: %s.\n", strings.Join(cfg.Guardrails.BlockedImports, ", "))
		}
		if cfg.Guardrails.MaxLength > 0 {
			fmt.Fprintf(&g, "Keep the output under %d characters.\n", cfg.Guardrails.MaxLength)
		}
		if g.Len() > 0 {
			parts = append(parts, strings.TrimSpace(g.String()))
		}
	}
	return strings.Join(parts, "\n\n")
}

// buildUserPrompt implements stage (3): Context -> Examples -> Task.
func buildUserPrompt(contextSection string, examples []recipe.AIExample, task string) string {
	var b strings.Builder
	if contextSection != "" {
		b.WriteString("## Context\n\n")
		b.WriteString(contextSection)
		b.WriteString("\n\n")
	}
	if len(examples) > 0 {
		b.WriteString("## Examples\n\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Input:\n%s\n\nOutput:\n%s\n\n", ex.Input, ex.Output)
		}
	}
	b.WriteString("## Task\n\n")
	b.WriteString(task)
	return b.String()
}

// renderTaskPrompt renders the step's TemplatedString prompt field against
// the variable environment. Duplicates a trimmed copy of the Template
// tool's func map (internal/tools) rather than importing it, since tools
// already imports aicore and the reverse would cycle.
func renderTaskPrompt(tmplSrc string, ectx *recipe.ExecutionContext) (string, error) {
	tmpl, err := template.New("ai-prompt").Funcs(promptFuncMap()).Parse(tmplSrc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ectx.Env.Context()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func promptFuncMap() template.FuncMap {
	return template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
}

// validateOutput implements stage (5)'s checks: syntax, guardrail imports,
// and max length.
func validateOutput(text string, cfg *recipe.AIStepConfig) []string {
	var errs []string
	if cfg.Guardrails != nil {
		g := cfg.Guardrails
		if g.MaxLength > 0 && len(text) > g.MaxLength {
			errs = append(errs, fmt.Sprintf("output exceeds max_length (%d > %d)", len(text), g.MaxLength))
		}
		for _, blocked := range g.BlockedImports {
			if strings.Contains(text, blocked) {
				errs = append(errs, fmt.Sprintf("output references blocked import %q", blocked))
			}
		}
		if len(g.AllowedImports) > 0 {
			for _, imp := range extractImportReferences(text) {
				if !containsString(g.AllowedImports, imp) {
					errs = append(errs, fmt.Sprintf("output references import %q not in allowed_imports", imp))
				}
			}
		}
	}
	if syntax := detectSyntax(cfg.Output); syntax != "" {
		if err := validateSyntax(syntax, text); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func detectSyntax(out recipe.OutputSpec) string {
	path := out.To
	if path == "" {
		path = out.Into
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".ts", ".tsx":
		return "ts"
	case ".js", ".jsx":
		return "js"
	case ".css":
		return "css"
	case ".html", ".htm":
		return "html"
	}
	return ""
}

func validateSyntax(kind, text string) error {
	switch kind {
	case "json":
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}
	case "yaml":
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return fmt.Errorf("invalid yaml: %w", err)
		}
	case "js", "ts", "css", "html":
		// No full parser is wired for these; a balanced-bracket check is
		// an approximate but cheap syntax smoke test.
		if !balancedBrackets(text) {
			return fmt.Errorf("unbalanced brackets in generated %s", kind)
		}
	}
	return nil
}

func balancedBrackets(text string) bool {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range text {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

var importRe = regexp.MustCompile(`(?:from|import|require\()\s*['"]([^'"]+)['"]`)

func extractImportReferences(text string) []string {
	var out []string
	for _, m := range importRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
