package tools

import (
	"context"
	"os"
	"path/filepath"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newEnsureDirsTool implements the Ensure-Dirs tool (§4.5.5): idempotent
// directory creation, recording only directories that did not already
// exist in filesCreated.
func newEnsureDirsTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.EnsureDirs

		var created []string
		for _, dir := range cfg.Dirs {
			rendered, err := renderText(dir, mergedRenderContext(ectx, nil))
			if err != nil {
				return nil, nil, nil, nil, rerrors.TemplateRenderFailed(dir, err)
			}
			target := rendered
			if !filepath.IsAbs(target) {
				target = filepath.Join(deps.ProjectDir, target)
			}
			if _, err := os.Stat(target); err == nil {
				continue
			}
			if ectx.DryRun {
				created = append(created, rendered)
				continue
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, nil, nil, nil, rerrors.IOError(target, err)
			}
			created = append(created, rendered)
		}
		return nil, nil, created, nil, nil
	}
}
