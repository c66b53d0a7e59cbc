package recipe

import (
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// Environment is the layered variable map used to render step inputs and
// evaluate conditions. Precedence, highest to lowest (§3): step-local
// overrides -> previous step outputs (as steps.<name>.output.<field>) ->
// recipe variables -> defaults.
type Environment struct {
	defaults      map[string]any
	recipeVars    map[string]any
	stepOutputs   map[string]map[string]any // step name -> output fields
	stepLocal     map[string]any
}

// NewEnvironment builds an Environment seeded with variable defaults
// overlaid by resolved recipe variables.
func NewEnvironment(defaults, recipeVars map[string]any) *Environment {
	return &Environment{
		defaults:    defaults,
		recipeVars:  recipeVars,
		stepOutputs: make(map[string]map[string]any),
	}
}

// WithStepLocal returns a derived Environment for one step's execution,
// with that step's local `variables` overrides applied on top. The derived
// environment shares the same step-outputs map (outputs from earlier
// batches must remain visible).
func (e *Environment) WithStepLocal(overrides map[string]any) *Environment {
	return &Environment{
		defaults:    e.defaults,
		recipeVars:  e.recipeVars,
		stepOutputs: e.stepOutputs,
		stepLocal:   overrides,
	}
}

// Scoped returns a derived Environment for a composite tool's group of
// inline sub-steps (§4.5.6): already-recorded step outputs remain visible,
// but subsequent RecordStepOutput calls populate a private copy of the
// step-outputs map rather than the parent's, so a sequence/parallel/
// conditional group's internal chaining never leaks upward.
func (e *Environment) Scoped() *Environment {
	stepOutputs := make(map[string]map[string]any, len(e.stepOutputs))
	for k, v := range e.stepOutputs {
		stepOutputs[k] = v
	}
	return &Environment{
		defaults:    e.defaults,
		recipeVars:  e.recipeVars,
		stepOutputs: stepOutputs,
	}
}

// RecordStepOutput makes a completed step's output fields visible to later
// steps as steps.<name>.output.<field>. The Group Executor calls this after
// a batch commits (§3 Ownership); the composite tools call it only on their
// own Scoped environments.
func (e *Environment) RecordStepOutput(stepName string, output map[string]any) {
	e.stepOutputs[stepName] = output
}

// Context builds the merged map used as the render context for both
// text/template execution and expr evaluation. Keys are layered per the
// precedence rule, then flattened into one map.
func (e *Environment) Context() map[string]any {
	merged := make(map[string]any, len(e.defaults)+len(e.recipeVars)+len(e.stepLocal)+1)
	for k, v := range e.defaults {
		merged[k] = v
	}
	for k, v := range e.recipeVars {
		merged[k] = v
	}

	steps := make(map[string]any, len(e.stepOutputs))
	for name, fields := range e.stepOutputs {
		stepView := make(map[string]any, 1)
		stepView["output"] = fields
		steps[name] = stepView
	}
	merged["steps"] = steps

	for k, v := range e.stepLocal {
		merged[k] = v
	}
	return merged
}

// EvaluateCondition compiles and runs expr against the current context,
// coercing the result to bool. Used for step `when` and conditional `if`.
func (e *Environment) EvaluateCondition(exprStr string) (bool, error) {
	if strings.TrimSpace(exprStr) == "" {
		return true, nil
	}
	program, err := expr.Compile(exprStr, expr.Env(e.Context()), expr.AsBool())
	if err != nil {
		return false, rerrors.Wrap(rerrors.CodeVariableValidationFailed, "condition expression failed to compile", err).
			WithContext("expression", exprStr)
	}
	out, err := expr.Run(program, e.Context())
	if err != nil {
		return false, rerrors.Wrap(rerrors.CodeVariableValidationFailed, "condition expression failed to evaluate", err).
			WithContext("expression", exprStr)
	}
	result, ok := out.(bool)
	if !ok {
		return false, rerrors.Newf(rerrors.CodeVariableValidationFailed, "condition expression %q did not evaluate to a boolean", exprStr)
	}
	return result, nil
}

// stringify converts a resolved value to its string form for contexts (like
// shell argv or prompt text) that need a plain string rather than a
// template-context value. Mirrors the teacher's StringifyValue: scalars use
// fmt formatting, composite values are left to callers that need JSON.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return ""
	}
}
