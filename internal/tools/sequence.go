package tools

import (
	"context"

	"github.com/recipe-core/engine/internal/recipe"
)

// newSequenceTool implements the Sequence tool (§4.5.6): an explicit
// ordered group of inline steps, run strictly in declared order even when
// the scheduler could otherwise infer the steps are independent.
func newSequenceTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		outputs, results, filesCreated, filesModified, err := runInlineSequential(ctx, deps, ectx, ectx.Step.Sequence.Steps)
		return outputs, results, filesCreated, filesModified, err
	}
}
