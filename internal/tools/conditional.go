package tools

import (
	"context"

	"github.com/recipe-core/engine/internal/recipe"
)

// newConditionalTool implements the Conditional tool (§4.5.6): evaluate
// `if` against the step's environment and run the matching branch's steps
// in declared order. An empty or absent branch is a no-op, not an error.
func newConditionalTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Conditional

		matched, err := ectx.Env.EvaluateCondition(cfg.If)
		if err != nil {
			return nil, nil, nil, nil, err
		}

		branch := cfg.Else
		branchName := "else"
		if matched {
			branch = cfg.Then
			branchName = "then"
		}
		if len(branch) == 0 {
			return map[string]any{"branch": branchName}, nil, nil, nil, nil
		}

		outputs, results, filesCreated, filesModified, err := runInlineSequential(ctx, deps, ectx, branch)
		if outputs == nil {
			outputs = map[string]any{}
		}
		outputs["branch"] = branchName
		return outputs, results, filesCreated, filesModified, err
	}
}
