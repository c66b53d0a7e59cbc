package recipe

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// ToolFunc dispatches one step to its tool implementation. Returns the
// step's output, tool-specific result, the file paths touched, and an
// error. internal/tools supplies the concrete registry; recipe stays
// decoupled from tool internals to avoid an import cycle (tools depends on
// recipe's types, not the other way around).
type ToolFunc func(ctx context.Context, ectx *ExecutionContext) (output any, toolResult any, filesCreated, filesModified []string, err error)

// ToolRegistry resolves a ToolKind to its dispatch function.
type ToolRegistry interface {
	Resolve(kind ToolKind) (ToolFunc, bool)
}

// ExecutionContext is the per-step handle passed to tools (§3).
type ExecutionContext struct {
	ProjectRoot    string
	RecipeName     string
	Step           *Step
	RecipeVars     map[string]any
	Env            *Environment
	StepResults    map[string]*StepResult
	resultsMu      *sync.RWMutex
	Logger         Logger
	DryRun         bool
	Force          bool
	CollectMode    bool
	Answers        map[string]string
	TemplatePath   string
}

// Logger is the minimal logging surface tools need; satisfied by
// *slog.Logger via internal/logging, kept as an interface here so recipe
// and tools don't import log/slog-specific types directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EvaluateCondition evaluates expr against the merged variable environment.
func (e *ExecutionContext) EvaluateCondition(exprStr string) (bool, error) {
	return e.Env.EvaluateCondition(exprStr)
}

// StepResultByName looks up a completed step's result by name (read-only; used by
// tools needing a prior step's file lists, not just its output fields).
func (e *ExecutionContext) StepResultByName(name string) (*StepResult, bool) {
	e.resultsMu.RLock()
	defer e.resultsMu.RUnlock()
	r, ok := e.StepResults[name]
	return r, ok
}

// Derive builds an ExecutionContext for one inline sub-step dispatched by a
// composite tool (sequence/parallel/conditional/recipe, §4.5.6). Sub-steps
// get their own independent StepResults scope rather than sharing the
// parent recipe's official map, since the Group Executor is that map's
// sole writer (§3 Ownership); composite tools surface sub-step results
// through their own ToolResult instead.
func (e *ExecutionContext) Derive(step *Step, env *Environment) *ExecutionContext {
	return &ExecutionContext{
		ProjectRoot:  e.ProjectRoot,
		RecipeName:   e.RecipeName,
		Step:         step,
		RecipeVars:   e.RecipeVars,
		Env:          env,
		StepResults:  make(map[string]*StepResult),
		resultsMu:    &sync.RWMutex{},
		Logger:       e.Logger,
		DryRun:       e.DryRun,
		Force:        e.Force,
		CollectMode:  e.CollectMode,
		Answers:      e.Answers,
		TemplatePath: e.TemplatePath,
	}
}

// GroupExecutor builds the dependency DAG, partitions it into Kahn-style
// batches, and runs each batch's steps concurrently via goroutines joined
// by a WaitGroup, per §4.3/§5. It is the exclusive owner and single writer
// of the StepResult map (§3 Ownership), mirroring the teacher's
// mutex-protected single-writer orchestrator state.
type GroupExecutor struct {
	Registry ToolRegistry
	Logger   Logger
}

// NewGroupExecutor creates a GroupExecutor dispatching through registry.
func NewGroupExecutor(registry ToolRegistry, logger Logger) *GroupExecutor {
	return &GroupExecutor{Registry: registry, Logger: logger}
}

// Execute runs every step of rec to completion or first aborting failure,
// returning the aggregated RunResult (§4.3).
func (g *GroupExecutor) Execute(ctx context.Context, rec *Recipe, env *Environment, execCtx RunOptions) (*RunResult, error) {
	start := time.Now()

	batches, err := computeBatches(rec.Steps)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*StepResult, len(rec.Steps))
	var resultsMu sync.RWMutex
	byName := make(map[string]*Step, len(rec.Steps))
	for _, s := range rec.Steps {
		byName[s.Name] = s
	}

	run := &RunResult{StepResults: results}
	aborted := false

	for _, batch := range batches {
		if aborted {
			break
		}

		var wg sync.WaitGroup
		var mu sync.Mutex // protects run.FilesCreated/FilesModified appends across this batch's goroutines
		for _, name := range batch {
			step := byName[name]
			wg.Add(1)
			go func(step *Step) {
				defer wg.Done()

				stepEnv := env.WithStepLocal(step.Variables)
				ectx := &ExecutionContext{
					ProjectRoot:  execCtx.ProjectRoot,
					RecipeName:   rec.Name,
					Step:         step,
					RecipeVars:   execCtx.RecipeVars,
					Env:          stepEnv,
					StepResults:  results,
					resultsMu:    &resultsMu,
					Logger:       g.Logger,
					DryRun:       execCtx.DryRun,
					Force:        execCtx.Force,
					CollectMode:  execCtx.CollectMode,
					Answers:      execCtx.Answers,
					TemplatePath: execCtx.TemplatePath,
				}

				result := g.executeStep(ctx, step, ectx)

				resultsMu.Lock()
				results[step.Name] = result
				resultsMu.Unlock()

				if result.Status != StepSkipped {
					mu.Lock()
					run.FilesCreated = append(run.FilesCreated, result.FilesCreated...)
					run.FilesModified = append(run.FilesModified, result.FilesModified...)
					mu.Unlock()
				}
			}(step)
		}
		wg.Wait()

		// Commit: env only sees this batch's step outputs once every step in
		// it has terminated (ordering guarantee, §5).
		for _, name := range batch {
			r := results[name]
			if r.Status == StepCompleted {
				if fields, ok := r.Output.(map[string]any); ok {
					env.RecordStepOutput(name, fields)
				} else {
					env.RecordStepOutput(name, map[string]any{"value": r.Output})
				}
			}
			if r.Status == StepFailed && !byName[name].ContinueOnError {
				aborted = true
			}
		}
	}

	run.Success = !aborted
	run.DurationMs = time.Since(start).Milliseconds()
	return run, nil
}

// RunOptions carries run-wide settings that every step's ExecutionContext
// inherits (as opposed to per-step fields computed fresh each iteration).
// Exported so callers outside this package (the CLI entry point, and the
// Recipe tool invoking a sub-recipe) can construct one.
type RunOptions struct {
	ProjectRoot  string
	RecipeVars   map[string]any
	DryRun       bool
	Force        bool
	CollectMode  bool
	Answers      map[string]string
	TemplatePath string
}

// ExecuteStep runs one step to a terminal StepResult via the same when/
// retry/backoff logic the Group Executor applies to DAG batches. Exported
// so the composite tools (sequence/parallel/conditional/recipe) can dispatch
// their inline sub-steps through one Step Executor implementation instead
// of duplicating its retry semantics.
func (g *GroupExecutor) ExecuteStep(ctx context.Context, step *Step, ectx *ExecutionContext) *StepResult {
	return g.executeStep(ctx, step, ectx)
}

// executeStep implements the Step Executor contract (§4.4): evaluate when,
// dispatch to tool, retry with backoff on failure, record result.
func (g *GroupExecutor) executeStep(ctx context.Context, step *Step, ectx *ExecutionContext) *StepResult {
	start := time.Now()

	ok, err := ectx.Env.EvaluateCondition(step.When)
	if err != nil {
		return &StepResult{
			StepName:  step.Name,
			ToolType:  step.Tool,
			Status:    StepFailed,
			StartTime: start,
			EndTime:   time.Now(),
			Error:     &StepError{Code: rerrors.Code(err), Message: err.Error()},
		}
	}
	if !ok {
		end := time.Now()
		return &StepResult{
			StepName:  step.Name,
			ToolType:  step.Tool,
			Status:    StepSkipped,
			StartTime: start,
			EndTime:   end,
			Duration:  end.Sub(start),
		}
	}

	toolFn, known := g.Registry.Resolve(step.Tool)
	if !known {
		rerr := rerrors.UnknownTool(step.Name, string(step.Tool))
		end := time.Now()
		return &StepResult{
			StepName:  step.Name,
			ToolType:  step.Tool,
			Status:    StepFailed,
			StartTime: start,
			EndTime:   end,
			Duration:  end.Sub(start),
			Error:     &StepError{Code: rerr.Code, Message: rerr.Message},
		}
	}

	var (
		output, toolResult         any
		filesCreated, filesModified []string
		lastErr                    error
	)

	maxAttempts := step.Retries + 1
	attemptsTaken := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attemptsTaken = attempt
				goto attemptsDone
			}
		}

		attemptsTaken = attempt + 1
		output, toolResult, filesCreated, filesModified, lastErr = toolFn(ctx, ectx)
		if lastErr == nil {
			break
		}
	}
attemptsDone:

	end := time.Now()
	retryCount := attemptsTaken - 1
	if retryCount < 0 {
		retryCount = 0
	}

	if lastErr != nil {
		result := &StepResult{
			StepName:   step.Name,
			ToolType:   step.Tool,
			Status:     StepFailed,
			StartTime:  start,
			EndTime:    end,
			Duration:   end.Sub(start),
			Error:      &StepError{Code: rerrors.Code(lastErr), Message: lastErr.Error()},
			RetryCount: retryCount,
		}
		return result
	}

	return &StepResult{
		StepName:      step.Name,
		ToolType:      step.Tool,
		Status:        StepCompleted,
		StartTime:     start,
		EndTime:       end,
		Duration:      end.Sub(start),
		Output:        output,
		ToolResult:    toolResult,
		FilesCreated:  filesCreated,
		FilesModified: filesModified,
		RetryCount:    retryCount,
	}
}

// retryBackoff implements the retry schedule from §4.4/§5: base 100ms,
// doubling, capped at 30s.
func retryBackoff(attempt int) time.Duration {
	const (
		base    = 100 * time.Millisecond
		ceiling = 30 * time.Second
	)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// computeBatches partitions steps into Kahn-style topological layers by
// dependsOn plus any implicit edges inferred from steps.<name> references
// in a step's own fields (§4.3: "steps with no explicit dependency still
// see an implicit ordering ... if they reference prior outputs"). Steps
// within a batch have no edges between them and may run concurrently.
// Layers are returned as step-name slices sorted for deterministic
// within-batch ordering of goroutine spawn (not of completion, which may
// interleave per §5).
func computeBatches(steps []*Step) ([][]string, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	byName := make(map[string]*Step, len(steps))
	edges := make(map[string]map[string]bool, len(steps))
	for _, s := range steps {
		byName[s.Name] = s
		edges[s.Name] = make(map[string]bool)
		for _, dep := range s.DependsOn {
			edges[s.Name][dep] = true
		}
	}
	for _, s := range steps {
		for _, ref := range implicitStepReferences(s) {
			if ref == s.Name {
				continue
			}
			if _, exists := byName[ref]; exists {
				edges[s.Name][ref] = true
			}
		}
	}
	for name, deps := range edges {
		indegree[name] = len(deps)
		for dep := range deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var batches [][]string
	remaining := len(steps)
	for remaining > 0 {
		var batch []string
		for name, deg := range indegree {
			if deg == 0 {
				batch = append(batch, name)
			}
		}
		if len(batch) == 0 {
			return nil, rerrors.DependencyCycle(remainingNames(indegree))
		}
		sort.Strings(batch)
		batches = append(batches, batch)

		for _, name := range batch {
			delete(indegree, name)
			remaining--
			for _, dep := range dependents[name] {
				indegree[dep]--
			}
		}
	}
	return batches, nil
}

var stepRefPattern = regexp.MustCompile(`steps\.([A-Za-z0-9_\-]+)`)

// implicitStepReferences scans the text-bearing fields of a step for
// "steps.<name>" references and returns the referenced step names, so that
// an author who forgets an explicit dependsOn still gets correct ordering.
func implicitStepReferences(s *Step) []string {
	var text strings.Builder
	switch {
	case s.Template != nil:
		text.WriteString(s.Template.Path)
	case s.Shell != nil:
		text.WriteString(s.Shell.Command)
	case s.AI != nil:
		text.WriteString(s.AI.Prompt)
	case s.Patch != nil:
		text.WriteString(s.Patch.Content)
	case s.Query != nil:
		text.WriteString(s.Query.Expression)
	case s.Prompt != nil:
		text.WriteString(s.Prompt.Message)
	case s.Conditional != nil:
		text.WriteString(s.Conditional.If)
	}
	text.WriteString(" ")
	text.WriteString(s.When)

	matches := stepRefPattern.FindAllStringSubmatch(text.String(), -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func remainingNames(indegree map[string]int) []string {
	names := make([]string, 0, len(indegree))
	for name := range indegree {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
