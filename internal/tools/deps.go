package tools

import (
	"github.com/recipe-core/engine/internal/aicore"
	"github.com/recipe-core/engine/internal/config"
	"github.com/recipe-core/engine/internal/recipe"
)

// Dependencies bundles the run-wide services every tool needs: access back
// into the recipe engine (for the composite tools), AI subsystem services,
// and configuration. Passed by value into each tool constructor; Registry
// is filled in by NewRegistry itself so composite tools can dispatch
// through the very registry they are being registered into.
type Dependencies struct {
	Config     *config.Config
	ProjectDir string
	Loader     *recipe.Loader
	Registry   recipe.ToolRegistry
	AI         *aicore.Pipeline
	Collector  *aicore.Collector
}
