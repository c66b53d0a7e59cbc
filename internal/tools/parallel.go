package tools

import (
	"context"

	"github.com/recipe-core/engine/internal/recipe"
)

// newParallelTool implements the Parallel tool (§4.5.6): an explicit
// concurrent group of inline steps, fired together via goroutines rather
// than scheduled through the DAG's dependency inference.
func newParallelTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		outputs, results, filesCreated, filesModified, err := runInlineParallel(ctx, deps, ectx, ectx.Step.Parallel.Steps)
		return outputs, results, filesCreated, filesModified, err
	}
}
