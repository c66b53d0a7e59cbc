package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/recipe-core/engine/internal/recipe"
)

// runInlineSequential dispatches steps one at a time, in declared order,
// through the same when/retry/backoff logic the Group Executor applies to
// DAG batches (§4.5.6: sequence and conditional branches have no implicit
// parallelism). Each completed step's output becomes visible to later
// steps in the same group as steps.<name>, scoped to this group so it
// never leaks into the parent recipe's environment.
func runInlineSequential(ctx context.Context, deps Dependencies, ectx *recipe.ExecutionContext, steps []*recipe.Step) (map[string]any, map[string]*recipe.StepResult, []string, []string, error) {
	ge := recipe.NewGroupExecutor(deps.Registry, ectx.Logger)
	groupEnv := ectx.Env.Scoped()

	outputs := make(map[string]any, len(steps))
	results := make(map[string]*recipe.StepResult, len(steps))
	var filesCreated, filesModified []string

	for _, step := range steps {
		stepEnv := groupEnv.WithStepLocal(step.Variables)
		subCtx := ectx.Derive(step, stepEnv)
		result := ge.ExecuteStep(ctx, step, subCtx)
		results[step.Name] = result

		if result.Status == recipe.StepSkipped {
			continue
		}

		filesCreated = append(filesCreated, result.FilesCreated...)
		filesModified = append(filesModified, result.FilesModified...)

		if result.Status == recipe.StepFailed {
			if step.ContinueOnError {
				continue
			}
			return outputs, results, filesCreated, filesModified, fmt.Errorf("step %q failed: %s", step.Name, result.Error.Message)
		}

		fields, ok := result.Output.(map[string]any)
		if !ok {
			fields = map[string]any{"value": result.Output}
		}
		groupEnv.RecordStepOutput(step.Name, fields)
		outputs[step.Name] = result.Output
	}

	return outputs, results, filesCreated, filesModified, nil
}

// runInlineParallel dispatches steps concurrently via goroutines joined by
// a WaitGroup (§4.5.6: parallel is an explicit concurrent group, independent
// of any dependency inference). Every step runs to completion regardless of
// its siblings' outcomes; the first failed, non-continue-on-error step in
// declared order is returned once all goroutines have finished.
func runInlineParallel(ctx context.Context, deps Dependencies, ectx *recipe.ExecutionContext, steps []*recipe.Step) (map[string]any, map[string]*recipe.StepResult, []string, []string, error) {
	ge := recipe.NewGroupExecutor(deps.Registry, ectx.Logger)
	groupEnv := ectx.Env.Scoped()

	outputs := make(map[string]any, len(steps))
	results := make(map[string]*recipe.StepResult, len(steps))
	var filesCreated, filesModified []string
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, step := range steps {
		wg.Add(1)
		go func(step *recipe.Step) {
			defer wg.Done()

			stepEnv := groupEnv.WithStepLocal(step.Variables)
			subCtx := ectx.Derive(step, stepEnv)
			result := ge.ExecuteStep(ctx, step, subCtx)

			mu.Lock()
			defer mu.Unlock()
			results[step.Name] = result
			if result.Status == recipe.StepSkipped {
				return
			}
			filesCreated = append(filesCreated, result.FilesCreated...)
			filesModified = append(filesModified, result.FilesModified...)
			if result.Status == recipe.StepCompleted {
				fields, ok := result.Output.(map[string]any)
				if !ok {
					fields = map[string]any{"value": result.Output}
				}
				groupEnv.RecordStepOutput(step.Name, fields)
				outputs[step.Name] = result.Output
			}
		}(step)
	}
	wg.Wait()

	for _, step := range steps {
		if r := results[step.Name]; r != nil && r.Status == recipe.StepFailed && !step.ContinueOnError {
			return outputs, results, filesCreated, filesModified, fmt.Errorf("step %q failed: %s", step.Name, r.Error.Message)
		}
	}

	return outputs, results, filesCreated, filesModified, nil
}
