package recipe

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// Loader resolves a recipe document from disk, including imported
// sub-recipes, searching kit directories with the same project-then-user
// precedence the rest of the pack uses for kit resolution.
type Loader struct {
	// KitDirs are search roots consulted in order when a RecipeRef names a
	// kit rather than a literal path.
	KitDirs []string
}

// NewLoader creates a Loader that searches the given kit directories in order.
func NewLoader(kitDirs ...string) *Loader {
	return &Loader{KitDirs: kitDirs}
}

// LoadResult is the outcome of loading a recipe: the resolved recipe plus
// any non-fatal diagnostics collected along the way.
type LoadResult struct {
	Recipe      *Recipe
	Diagnostics []string
}

// LoadRecipe parses a recipe document from source, resolves its imports,
// and validates the result. source is a file path.
func (l *Loader) LoadRecipe(source string) (*LoadResult, error) {
	return l.loadWithStack(source, nil)
}

// LoadRecipeFromBytes parses an in-memory recipe document (no imports can be
// resolved relative to a file, so import paths must be absolute or kit-relative).
func (l *Loader) LoadRecipeFromBytes(data []byte, sourcePath string) (*LoadResult, error) {
	rec, err := parseRecipe(data, sourcePath)
	if err != nil {
		return nil, err
	}
	return l.finish(rec, nil)
}

func (l *Loader) loadWithStack(source string, stack []string) (*LoadResult, error) {
	for _, visited := range stack {
		if visited == source {
			cycle := append(append([]string{}, stack...), source)
			return nil, rerrors.CompositionCycle(cycle)
		}
	}
	stack = append(stack, source)

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, rerrors.IOError(source, err)
	}

	rec, err := parseRecipe(data, source)
	if err != nil {
		return nil, err
	}

	return l.finishWithStack(rec, stack)
}

func (l *Loader) finish(rec *Recipe, stack []string) (*LoadResult, error) {
	return l.finishWithStack(rec, stack)
}

// finishWithStack resolves imports, merges composition, and validates
// invariants (unique step names, dependsOn resolution, no cycles).
func (l *Loader) finishWithStack(rec *Recipe, stack []string) (*LoadResult, error) {
	var diagnostics []string

	for _, ref := range rec.Imports {
		path, err := l.resolveRef(ref, rec.SourcePath)
		if err != nil {
			return nil, err
		}
		sub, err := l.loadWithStack(path, stack)
		if err != nil {
			return nil, err
		}
		mergeImport(rec, sub.Recipe, ref.As)
		diagnostics = append(diagnostics, sub.Diagnostics...)
	}

	if err := validateRecipe(rec); err != nil {
		return nil, err
	}

	return &LoadResult{Recipe: rec, Diagnostics: diagnostics}, nil
}

// resolveRef turns a RecipeRef into a concrete file path: a literal Path is
// resolved relative to the importing recipe's directory; a Kit+Name pair is
// searched across KitDirs in order (first match wins, same precedence as
// the rest of the pack's kit resolution).
func (l *Loader) resolveRef(ref RecipeRef, fromSource string) (string, error) {
	if ref.Path != "" {
		if filepath.IsAbs(ref.Path) {
			return ref.Path, nil
		}
		base := "."
		if fromSource != "" {
			base = filepath.Dir(fromSource)
		}
		return filepath.Join(base, ref.Path), nil
	}

	for _, dir := range l.KitDirs {
		candidate := filepath.Join(dir, ref.Kit, ref.Name+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		candidate = filepath.Join(dir, ref.Kit, ref.Name+".yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", rerrors.New(rerrors.CodeRecipeParseError, fmt.Sprintf("import %s/%s not found in any kit dir", ref.Kit, ref.Name))
}

// mergeImport folds an imported sub-recipe's variables and steps into the
// parent. When `as` is set, the sub-recipe's steps are namespaced
// "<as>/<step>" and its own dependsOn edges are rewritten accordingly;
// unnamed imports contribute their variables only (steps must be invoked
// explicitly via a `recipe` step).
func mergeImport(parent *Recipe, child *Recipe, as string) {
	if parent.Variables == nil {
		parent.Variables = make(map[string]VariableDef)
	}
	for name, def := range child.Variables {
		if _, exists := parent.Variables[name]; !exists {
			parent.Variables[name] = def
		}
	}

	if as == "" {
		return
	}
	for _, step := range child.Steps {
		namespaced := *step
		namespaced.Name = as + "/" + step.Name
		needs := make([]string, len(step.DependsOn))
		for i, d := range step.DependsOn {
			needs[i] = as + "/" + d
		}
		namespaced.DependsOn = needs
		parent.Steps = append(parent.Steps, &namespaced)
	}
}

func parseRecipe(data []byte, sourcePath string) (*Recipe, error) {
	var rec Recipe
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, rerrors.RecipeParseError(sourcePath, err)
	}
	rec.SourcePath = sourcePath
	return &rec, nil
}

// validateRecipe checks the structural invariants from spec §3: unique step
// names, dependsOn resolving to earlier-or-sibling steps, unique variable
// names (guaranteed by the map type), unknown tools, and DAG cycles.
func validateRecipe(rec *Recipe) error {
	if rec.Name == "" {
		return rerrors.RecipeSchemaInvalid([]rerrors.SchemaViolation{
			{Field: "name", Reason: "required"},
		})
	}

	seen := make(map[string]bool, len(rec.Steps))
	var violations []rerrors.SchemaViolation
	for _, step := range rec.Steps {
		if step.Name == "" {
			violations = append(violations, rerrors.SchemaViolation{Field: "steps[].name", Reason: "required"})
			continue
		}
		if seen[step.Name] {
			return rerrors.DuplicateStepName(step.Name)
		}
		seen[step.Name] = true

		if err := step.Validate(); err != nil {
			violations = append(violations, rerrors.SchemaViolation{Field: "steps." + step.Name, Reason: err.Error()})
		}
	}
	if len(violations) > 0 {
		return rerrors.RecipeSchemaInvalid(violations)
	}

	for _, step := range rec.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return rerrors.UnknownStepReference(step.Name, dep)
			}
		}
	}

	if cycle := findDependencyCycle(rec.Steps); len(cycle) > 0 {
		return rerrors.DependencyCycle(cycle)
	}

	return nil
}

// findDependencyCycle runs a 3-color DFS over the dependsOn graph and
// returns the cycle path if one exists, nil otherwise.
func findDependencyCycle(steps []*Step) []string {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.Name] = s.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, dep := range deps[id] {
			if state[dep] == visiting {
				cycle = []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{dep}, cycle...)
				return true
			}
			if state[dep] == unvisited {
				parent[dep] = id
				if dfs(dep) {
					return true
				}
			}
		}
		state[id] = visited
		return false
	}

	for _, s := range steps {
		if state[s.Name] == unvisited {
			if dfs(s.Name) {
				return cycle
			}
		}
	}
	return nil
}
