package tools

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/recipe-core/engine/internal/aicore"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// frontmatter is the YAML header of a template file (§4.5.1, §6).
type frontmatter struct {
	To           string `yaml:"to"`
	Inject       bool   `yaml:"inject"`
	After        string `yaml:"after"`
	Before       string `yaml:"before"`
	AtLine       int    `yaml:"atLine"`
	At           string `yaml:"at"` // start|end
	SkipIf       string `yaml:"skip_if"`
	UnlessExists bool   `yaml:"unless_exists"`
	Condition    string `yaml:"condition"`
}

// funcMap is the helper set exposed to every rendered template, carried
// forward from the teacher's Dockerfile generator (default/lower/upper/
// title/trimSuffix/replace) since nothing in the spec calls for a richer
// helper set.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"default": func(def, val any) any {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"trimSuffix": strings.TrimSuffix,
		"replace":    strings.ReplaceAll,
	}
}

func newTemplateTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Template
		path := resolveTemplatePath(deps.ProjectDir, ectx.TemplatePath, cfg.Path)

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateNotFound(path)
		}

		fm, body, err := splitFrontmatter(string(raw))
		if err != nil {
			return nil, nil, nil, nil, rerrors.Wrap(rerrors.CodeTemplateRenderFailed, "frontmatter parse failed", err).WithContext("path", path)
		}

		renderCtx := mergedRenderContext(ectx, cfg.Variables)

		renderedTo, err := renderText(fm.To, renderCtx)
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateRenderFailed(path, err)
		}

		collector := deps.Collector
		bodyOut, err := renderWithAiTags(body, renderCtx, ectx.CollectMode, ectx.Answers, collector, ectx.Step.Name)
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateRenderFailed(path, err)
		}

		if ectx.CollectMode {
			// Pass 1: render triggers @ai collection but nothing is written.
			return nil, nil, nil, nil, nil
		}

		if fm.Condition != "" {
			ok, err := ectx.Env.EvaluateCondition(fm.Condition)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			if !ok {
				return nil, nil, nil, nil, nil
			}
		}

		target := filepath.Join(deps.ProjectDir, renderedTo)
		if !fm.Inject {
			created, err := writeCreate(target, bodyOut, fm.UnlessExists, ectx.Force || os.Getenv("HYPERGEN_OVERWRITE") == "1", ectx.DryRun)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			if !created {
				return nil, nil, nil, nil, nil
			}
			return nil, nil, []string{renderedTo}, nil, nil
		}

		modified, err := writeInject(target, bodyOut, fm.After, fm.Before, fm.At, fm.AtLine, fm.SkipIf, ectx.DryRun)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if !modified {
			return nil, nil, nil, nil, nil
		}
		return nil, nil, nil, []string{renderedTo}, nil
	}
}

// resolveTemplatePath resolves a template's path relative to the recipe's
// own directory, falling back to the project root.
func resolveTemplatePath(projectDir, recipeTemplateDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if recipeTemplateDir != "" {
		return filepath.Join(recipeTemplateDir, path)
	}
	return filepath.Join(projectDir, path)
}

var frontmatterFence = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n?`)

// splitFrontmatter separates a template file's YAML frontmatter from its
// body (§6: "Starts with YAML frontmatter fenced by --- on its own lines").
func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter
	m := frontmatterFence.FindStringSubmatchIndex(content)
	if m == nil {
		return fm, content, nil
	}
	header := content[m[2]:m[3]]
	body := content[m[1]:]
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", err
	}
	return fm, body, nil
}

// mergedRenderContext builds the render context for text/template: the
// environment's layered map with the step-local template variables laid
// over it. No other capability fields are added to the context; `@ai`
// handling happens in the preprocessor before rendering.
func mergedRenderContext(ectx *recipe.ExecutionContext, extra map[string]any) map[string]any {
	base := ectx.Env.Context()
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func renderText(tmplSrc string, renderCtx map[string]any) (string, error) {
	if tmplSrc == "" {
		return "", nil
	}
	tmpl, err := template.New("tpl").Funcs(funcMap()).Parse(tmplSrc)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, renderCtx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderWithAiTags preprocesses `@ai(...) ... @end` blocks (§4.6.2) before
// handing the remaining text/template text to the standard renderer: the
// AST-preprocessor shim called for in §9, since text/template cannot host
// a custom block tag that suppresses its own output and receives a raw
// body callback.
func renderWithAiTags(body string, renderCtx map[string]any, collectMode bool, answers map[string]string, collector *aicore.Collector, stepName string) (string, error) {
	processed, err := aicore.ProcessAiBlocks(body, aicore.AiBlockContext{
		CollectMode: collectMode,
		Answers:     answers,
		Collector:   collector,
		StepName:    stepName,
	})
	if err != nil {
		return "", err
	}
	if collectMode {
		// In collect mode the @ai blocks were already stripped; still
		// render the rest so any template errors surface at collect time.
		return renderText(processed, renderCtx)
	}
	return renderText(processed, renderCtx)
}

func writeCreate(target, content string, unlessExists, force, dryRun bool) (bool, error) {
	if _, err := os.Stat(target); err == nil {
		if unlessExists {
			return false, nil
		}
		if !force {
			return false, rerrors.TargetExists(target)
		}
	}
	if dryRun {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return false, rerrors.IOError(target, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return false, rerrors.IOError(target, err)
	}
	return true, nil
}
