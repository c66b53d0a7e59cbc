// Package tools implements the closed set of tool kinds (§4.5) dispatched
// by the Step Executor: template, shell, query, patch, ai, prompt, install,
// ensure-dirs, recipe, sequence, parallel, and conditional.
package tools

import (
	"sync"

	"github.com/recipe-core/engine/internal/recipe"
)

// Registry resolves a recipe.ToolKind to its dispatch function. Mirrors the
// teacher's adapter.Registry: a name -> implementation lookup behind a
// mutex, with built-ins registered once at construction (here there is no
// file-based override tier, since the tool set is closed by spec rather
// than pluggable, but the cache/lookup shape is the same).
type Registry struct {
	mu    sync.RWMutex
	tools map[recipe.ToolKind]recipe.ToolFunc
}

// NewRegistry builds a Registry with every built-in tool wired in. deps
// need not have Registry set; NewRegistry points it at the Registry being
// built so composite tools (sequence/parallel/conditional/recipe) can
// dispatch their inline steps through the same registry.
func NewRegistry(baseDeps Dependencies) *Registry {
	r := &Registry{tools: make(map[recipe.ToolKind]recipe.ToolFunc, 12)}
	deps := baseDeps
	deps.Registry = r

	r.register(recipe.ToolTemplate, newTemplateTool(deps))
	r.register(recipe.ToolShell, newShellTool(deps))
	r.register(recipe.ToolQuery, newQueryTool(deps))
	r.register(recipe.ToolPatch, newPatchTool(deps))
	r.register(recipe.ToolAI, newAITool(deps))
	r.register(recipe.ToolPrompt, newPromptTool(deps))
	r.register(recipe.ToolInstall, newInstallTool(deps))
	r.register(recipe.ToolEnsureDirs, newEnsureDirsTool(deps))
	r.register(recipe.ToolRecipe, newRecipeTool(deps))
	r.register(recipe.ToolSequence, newSequenceTool(deps))
	r.register(recipe.ToolParallel, newParallelTool(deps))
	r.register(recipe.ToolConditional, newConditionalTool(deps))

	return r
}

func (r *Registry) register(kind recipe.ToolKind, fn recipe.ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[kind] = fn
}

// Resolve implements recipe.ToolRegistry.
func (r *Registry) Resolve(kind recipe.ToolKind) (recipe.ToolFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[kind]
	return fn, ok
}
