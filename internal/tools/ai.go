package tools

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/recipe-core/engine/internal/aicore"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newAITool implements the AI tool (§4.5.2): resolve the execution mode,
// run the five-stage prompt pipeline, and route the generated text to
// exactly one OutputSpec destination.
func newAITool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.AI
		if deps.AI == nil {
			return nil, nil, nil, nil, rerrors.AIProviderUnavailable(cfg.Provider)
		}

		mode := aicore.ResolveMode(deps.Config, cfg.Provider)

		text, err := deps.AI.Run(ctx, ectx, cfg, mode, ectx.Step.Name)
		if err != nil {
			if errors.Is(err, aicore.ErrDeferred) {
				return nil, nil, nil, nil, rerrors.AIPass1Deferred()
			}
			if errors.Is(err, aicore.ErrFallback) {
				return nil, nil, nil, nil, nil
			}
			return nil, nil, nil, nil, err
		}

		return routeAIOutput(deps, ectx, cfg.Output, text)
	}
}

// routeAIOutput implements the AI tool's OutputSpec dispatch, reusing the
// Template tool's create/inject primitives for the file-backed variants.
func routeAIOutput(deps Dependencies, ectx *recipe.ExecutionContext, out recipe.OutputSpec, text string) (any, any, []string, []string, error) {
	switch out.Type {
	case "variable":
		return map[string]any{out.Variable: text}, nil, nil, nil, nil
	case "stdout":
		if ectx.Logger != nil {
			ectx.Logger.Info("ai output", "step", ectx.Step.Name, "text", text)
		}
		return map[string]any{"value": text}, nil, nil, nil, nil
	case "file":
		renderedTo, err := renderText(out.To, mergedRenderContext(ectx, nil))
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateRenderFailed(out.To, err)
		}
		target := filepath.Join(deps.ProjectDir, renderedTo)
		created, err := writeCreate(target, text, false, ectx.Force, ectx.DryRun)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if !created {
			return nil, nil, nil, nil, nil
		}
		return nil, nil, []string{renderedTo}, nil, nil
	case "inject":
		modified, err := writeInject(filepath.Join(deps.ProjectDir, out.Into), text, out.After, out.Before, out.At, 0, "", ectx.DryRun)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if !modified {
			return nil, nil, nil, nil, nil
		}
		return nil, nil, nil, []string{out.Into}, nil
	default:
		return nil, nil, nil, nil, rerrors.Newf(rerrors.CodeRecipeSchemaInvalid, "ai step has unknown output.type %q", out.Type)
	}
}
