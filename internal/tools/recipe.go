package tools

import (
	"context"
	"path/filepath"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newRecipeTool implements the Recipe tool (§4.5.6): load and run a
// sub-recipe to completion, with the parent run's variables available as
// inputs. The sub-recipe's own StepResults are flattened into this step's
// ToolResult keyed "<thisStepName>/<childStepName>", giving callers the
// same "<parent>/<child>" addressing the spec uses for nested results.
func newRecipeTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Recipe

		path := cfg.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(deps.ProjectDir, path)
		}

		loaded, err := deps.Loader.LoadRecipe(path)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		sub := loaded.Recipe

		inputs := make(map[string]any, len(ectx.RecipeVars)+len(cfg.Variables))
		for k, v := range ectx.RecipeVars {
			inputs[k] = v
		}
		for k, v := range cfg.Variables {
			inputs[k] = v
		}

		bound, err := recipe.ResolveVariables(sub.Variables, inputs, false, nil)
		if err != nil {
			return nil, nil, nil, nil, err
		}

		env := recipe.NewEnvironment(nil, bound)
		ge := recipe.NewGroupExecutor(deps.Registry, ectx.Logger)

		run, err := ge.Execute(ctx, sub, env, recipe.RunOptions{
			ProjectRoot:  deps.ProjectDir,
			RecipeVars:   bound,
			DryRun:       ectx.DryRun,
			Force:        ectx.Force,
			CollectMode:  ectx.CollectMode,
			Answers:      ectx.Answers,
			TemplatePath: ectx.TemplatePath,
		})
		if err != nil {
			return nil, nil, nil, nil, err
		}

		flattened := make(map[string]*recipe.StepResult, len(run.StepResults))
		outputs := make(map[string]any, len(run.StepResults))
		for name, r := range run.StepResults {
			flattened[ectx.Step.Name+"/"+name] = r
			if r.Status == recipe.StepCompleted {
				outputs[name] = r.Output
			}
		}

		if !run.Success {
			return outputs, flattened, run.FilesCreated, run.FilesModified, rerrors.Newf(rerrors.CodeInternal, "sub-recipe %q did not complete successfully", sub.Name)
		}

		return outputs, flattened, run.FilesCreated, run.FilesModified, nil
	}
}
