// Package errors provides structured, coded error types for the recipe
// execution core.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes, grouped by domain per the error handling design.
const (
	// Configuration
	CodeRecipeParseError     = "RECIPE_PARSE_ERROR"
	CodeRecipeSchemaInvalid  = "RECIPE_SCHEMA_INVALID"
	CodeCompositionCycle     = "COMPOSITION_CYCLE"
	CodeDuplicateStepName    = "DUPLICATE_STEP_NAME"
	CodeUnknownStepReference = "UNKNOWN_STEP_REFERENCE"
	CodeUnknownTool          = "UNKNOWN_TOOL"
	CodeDependencyCycle      = "DEPENDENCY_CYCLE"

	// Variables
	CodeVariableValidationFailed        = "VARIABLE_VALIDATION_FAILED"
	CodeMissingRequiredVariable         = "MISSING_REQUIRED_VARIABLE"
	CodePromptRequiredButNonInteractive = "PROMPT_REQUIRED_BUT_NONINTERACTIVE"

	// Template
	CodeTemplateNotFound     = "TEMPLATE_NOT_FOUND"
	CodeTemplateRenderFailed = "TEMPLATE_RENDER_FAILED"
	CodeInjectAnchorNotFound = "INJECT_ANCHOR_NOT_FOUND"
	CodeTargetExists         = "TARGET_EXISTS"

	// Shell / Install / Query / Patch
	CodeShellNonZeroExit = "SHELL_NONZERO_EXIT"
	CodeShellTimeout     = "SHELL_TIMEOUT"
	CodeInstallFailed    = "INSTALL_FAILED"
	CodeQueryFailed      = "QUERY_FAILED"
	CodePatchFailed      = "PATCH_FAILED"

	// AI
	CodeAIProviderUnavailable = "AI_PROVIDER_UNAVAILABLE"
	CodeAIAPIKeyMissing       = "AI_API_KEY_MISSING"
	CodeAIGenerationFailed    = "AI_GENERATION_FAILED"
	CodeAIBudgetExceeded      = "AI_BUDGET_EXCEEDED"
	CodeAITransportFailed     = "AI_TRANSPORT_FAILED"
	CodeAIAnswerMissing       = "AI_ANSWER_MISSING"
	CodeAIPass1Deferred       = "AI_PASS1_DEFERRED"

	// General
	CodeFSPermissionDenied = "FS_PERMISSION_DENIED"
	CodeIOError            = "IO_ERROR"
	CodeInternal           = "INTERNAL"
)

// RecipeError is the structured error type for recipe engine operations.
type RecipeError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Context     map[string]any `json:"context,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Cause       error          `json:"-"`
}

// Error implements the error interface.
func (e *RecipeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *RecipeError) Unwrap() error {
	return e.Cause
}

// WithContext adds a context entry to the error.
func (e *RecipeError) WithContext(key string, value any) *RecipeError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSuggestions attaches up to three suggested next actions; extras are
// dropped since the error design caps user-visible suggestions at three.
func (e *RecipeError) WithSuggestions(suggestions ...string) *RecipeError {
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	e.Suggestions = suggestions
	return e
}

// WithCause wraps an underlying error.
func (e *RecipeError) WithCause(err error) *RecipeError {
	e.Cause = err
	return e
}

// MarshalJSON implements json.Marshaler with cause error message.
func (e *RecipeError) MarshalJSON() ([]byte, error) {
	type alias RecipeError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// New creates a new RecipeError.
func New(code, message string) *RecipeError {
	return &RecipeError{Code: code, Message: message}
}

// Newf creates a new RecipeError with a formatted message.
func Newf(code, format string, args ...any) *RecipeError {
	return &RecipeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a RecipeError.
func Wrap(code, message string, err error) *RecipeError {
	return &RecipeError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted RecipeError.
func Wrapf(code string, err error, format string, args ...any) *RecipeError {
	return &RecipeError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// --- Configuration errors ---

func RecipeParseError(source string, err error) *RecipeError {
	return Wrap(CodeRecipeParseError, "failed to parse recipe", err).
		WithContext("source", source)
}

// SchemaViolation describes one field-level validation failure, used by
// RecipeSchemaInvalid to report the full list in one error (collect-all,
// not fail-on-first).
type SchemaViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func RecipeSchemaInvalid(violations []SchemaViolation) *RecipeError {
	return New(CodeRecipeSchemaInvalid, fmt.Sprintf("recipe schema invalid: %d violation(s)", len(violations))).
		WithContext("violations", violations)
}

func CompositionCycle(cycle []string) *RecipeError {
	return New(CodeCompositionCycle, "cycle detected in recipe imports").
		WithContext("cycle", cycle)
}

func DuplicateStepName(name string) *RecipeError {
	return Newf(CodeDuplicateStepName, "duplicate step name: %s", name).
		WithContext("step", name)
}

func UnknownStepReference(from, to string, suggestions ...string) *RecipeError {
	return Newf(CodeUnknownStepReference, "step %s references unknown step %s", from, to).
		WithContext("step", from).
		WithContext("reference", to).
		WithSuggestions(suggestions...)
}

func UnknownTool(step, tool string, suggestions ...string) *RecipeError {
	return Newf(CodeUnknownTool, "step %s uses unknown tool %q", step, tool).
		WithContext("step", step).
		WithContext("tool", tool).
		WithSuggestions(suggestions...)
}

func DependencyCycle(cycle []string) *RecipeError {
	return New(CodeDependencyCycle, "dependency cycle detected among steps").
		WithContext("cycle", cycle)
}

// --- Variable errors ---

func VariableValidationFailed(name, reason string) *RecipeError {
	return Newf(CodeVariableValidationFailed, "variable %s failed validation: %s", name, reason).
		WithContext("name", name).
		WithContext("reason", reason)
}

func MissingRequiredVariable(name string) *RecipeError {
	return Newf(CodeMissingRequiredVariable, "missing required variable: %s", name).
		WithContext("name", name)
}

func PromptRequiredButNonInteractive(name string) *RecipeError {
	return Newf(CodePromptRequiredButNonInteractive, "variable %s requires a prompt but the run is non-interactive", name).
		WithContext("name", name)
}

// --- Template errors ---

func TemplateNotFound(path string) *RecipeError {
	return Newf(CodeTemplateNotFound, "template not found: %s", path).
		WithContext("path", path)
}

func TemplateRenderFailed(path string, err error) *RecipeError {
	return Wrap(CodeTemplateRenderFailed, "template render failed", err).
		WithContext("path", path)
}

func InjectAnchorNotFound(target, strategy string) *RecipeError {
	return Newf(CodeInjectAnchorNotFound, "inject anchor not found in %s (strategy: %s)", target, strategy).
		WithContext("target", target).
		WithContext("strategy", strategy)
}

func TargetExists(path string) *RecipeError {
	return Newf(CodeTargetExists, "target already exists: %s", path).
		WithContext("path", path)
}

// --- Shell / Install / Query / Patch errors ---

func ShellNonZeroExit(command string, exitCode int) *RecipeError {
	return Newf(CodeShellNonZeroExit, "command exited with status %d", exitCode).
		WithContext("command", command).
		WithContext("exit_code", exitCode)
}

func ShellTimeout(command string) *RecipeError {
	return Newf(CodeShellTimeout, "command timed out: %s", command).
		WithContext("command", command)
}

func InstallFailed(manager string, err error) *RecipeError {
	return Wrap(CodeInstallFailed, "package install failed", err).
		WithContext("manager", manager)
}

func QueryFailed(file string, err error) *RecipeError {
	return Wrap(CodeQueryFailed, "query failed", err).
		WithContext("file", file)
}

func PatchFailed(target string, err error) *RecipeError {
	return Wrap(CodePatchFailed, "patch failed", err).
		WithContext("target", target)
}

// --- AI errors ---

func AIProviderUnavailable(provider string) *RecipeError {
	return Newf(CodeAIProviderUnavailable, "ai provider unavailable: %s", provider).
		WithContext("provider", provider)
}

func AIAPIKeyMissing(provider, envVar string) *RecipeError {
	return Newf(CodeAIAPIKeyMissing, "ai provider %s requires %s to be set", provider, envVar).
		WithContext("provider", provider).
		WithContext("env_var", envVar)
}

func AIGenerationFailed(err error) *RecipeError {
	return Wrap(CodeAIGenerationFailed, "ai generation failed", err)
}

func AIBudgetExceeded(spentUsd, limitUsd float64) *RecipeError {
	return Newf(CodeAIBudgetExceeded, "ai budget exceeded: $%.4f spent, $%.4f limit", spentUsd, limitUsd).
		WithContext("spent_usd", spentUsd).
		WithContext("limit_usd", limitUsd)
}

func AITransportFailed(mode string, err error) *RecipeError {
	return Wrap(CodeAITransportFailed, "ai transport failed", err).
		WithContext("mode", mode)
}

func AIAnswerMissing(key string) *RecipeError {
	return Newf(CodeAIAnswerMissing, "no answer provided for ai block: %s", key).
		WithContext("key", key)
}

// AIPass1Deferred signals that a run produced unanswered `@ai` blocks in
// stdout mode: Pass 1 has printed its prompt document and the run must be
// repeated with --answers once the operator has supplied responses.
func AIPass1Deferred() *RecipeError {
	return New(CodeAIPass1Deferred, "pass 1 complete: answer the printed prompts and re-run with --answers")
}

// --- General errors ---

func FSPermissionDenied(path string, err error) *RecipeError {
	return Wrap(CodeFSPermissionDenied, "permission denied", err).
		WithContext("path", path)
}

func IOError(path string, err error) *RecipeError {
	return Wrap(CodeIOError, "io error", err).
		WithContext("path", path)
}

func Internal(message string, err error) *RecipeError {
	return Wrap(CodeInternal, message, err)
}

// HasCode checks if an error is a RecipeError with the given code. It
// handles wrapped errors by unwrapping to find a RecipeError.
func HasCode(err error, code string) bool {
	var rerr *RecipeError
	if errors.As(err, &rerr) {
		return rerr.Code == code
	}
	return false
}

// Code returns the error code if err is a RecipeError, empty string otherwise.
func Code(err error) string {
	var rerr *RecipeError
	if errors.As(err, &rerr) {
		return rerr.Code
	}
	return ""
}
