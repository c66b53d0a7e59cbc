package tools

import (
	"context"
	"path/filepath"

	"github.com/recipe-core/engine/internal/recipe"
)

// newPatchTool implements the Patch tool (§4.5.5): the same anchor
// semantics as Template's inject mode, applied to literal content rather
// than a rendered template body.
func newPatchTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Patch

		content, err := renderText(cfg.Content, mergedRenderContext(ectx, nil))
		if err != nil {
			return nil, nil, nil, nil, err
		}

		target := cfg.Target
		if !filepath.IsAbs(target) {
			target = filepath.Join(deps.ProjectDir, target)
		}

		modified, err := writeInject(target, content, cfg.After, cfg.Before, cfg.At, cfg.AtLine, cfg.SkipIf, ectx.DryRun)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if !modified {
			return nil, nil, nil, nil, nil
		}
		return nil, nil, nil, []string{cfg.Target}, nil
	}
}
