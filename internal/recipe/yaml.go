package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// stepCommon mirrors the fields common to every step (§3), decoded first;
// the tool-specific fields are decoded separately into the config type
// matching Tool, since a Step's YAML shape is flat (tool-specific keys sit
// alongside the common ones, not nested under a sub-key).
type stepCommon struct {
	Name            string         `yaml:"name"`
	Tool            ToolKind       `yaml:"tool"`
	When            string         `yaml:"when"`
	DependsOn       []string       `yaml:"dependsOn"`
	Retries         int            `yaml:"retries"`
	ContinueOnError bool           `yaml:"continueOnError"`
	Variables       map[string]any `yaml:"variables"`
}

// UnmarshalYAML implements the tagged-union decode: common fields first,
// then the single tool-specific config selected by Tool.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var common stepCommon
	if err := node.Decode(&common); err != nil {
		return err
	}
	s.Name = common.Name
	s.Tool = common.Tool
	s.When = common.When
	s.DependsOn = common.DependsOn
	s.Retries = common.Retries
	s.ContinueOnError = common.ContinueOnError
	s.Variables = common.Variables

	switch s.Tool {
	case ToolTemplate:
		s.Template = &TemplateConfig{}
		return node.Decode(s.Template)
	case ToolShell:
		s.Shell = &ShellConfig{}
		return node.Decode(s.Shell)
	case ToolQuery:
		s.Query = &QueryConfig{}
		return node.Decode(s.Query)
	case ToolPatch:
		s.Patch = &PatchConfig{}
		return node.Decode(s.Patch)
	case ToolAI:
		s.AI = &AIStepConfig{}
		return node.Decode(s.AI)
	case ToolPrompt:
		s.Prompt = &PromptConfig{}
		return node.Decode(s.Prompt)
	case ToolInstall:
		s.Install = &InstallConfig{}
		return node.Decode(s.Install)
	case ToolEnsureDirs:
		s.EnsureDirs = &EnsureDirsConfig{}
		return node.Decode(s.EnsureDirs)
	case ToolRecipe:
		s.Recipe = &RecipeStepConfig{}
		return node.Decode(s.Recipe)
	case ToolSequence:
		s.Sequence = &SequenceConfig{}
		return node.Decode(s.Sequence)
	case ToolParallel:
		s.Parallel = &ParallelConfig{}
		return node.Decode(s.Parallel)
	case ToolConditional:
		s.Conditional = &ConditionalConfig{}
		return node.Decode(s.Conditional)
	default:
		// Unknown tool: leave configs unset; Step.Validate reports it as a
		// schema violation rather than panicking here, so the loader can
		// collect every violation before failing (RECIPE_SCHEMA_INVALID).
		return nil
	}
}

// MarshalYAML flattens the tagged union back to the flat wire shape, mostly
// useful for re-emitting a composed/merged recipe (e.g. debugging output).
func (s *Step) MarshalYAML() (any, error) {
	out := map[string]any{
		"name": s.Name,
		"tool": s.Tool,
	}
	if s.When != "" {
		out["when"] = s.When
	}
	if len(s.DependsOn) > 0 {
		out["dependsOn"] = s.DependsOn
	}
	if s.Retries > 0 {
		out["retries"] = s.Retries
	}
	if s.ContinueOnError {
		out["continueOnError"] = s.ContinueOnError
	}
	if len(s.Variables) > 0 {
		out["variables"] = s.Variables
	}

	var cfg any
	switch s.Tool {
	case ToolTemplate:
		cfg = s.Template
	case ToolShell:
		cfg = s.Shell
	case ToolQuery:
		cfg = s.Query
	case ToolPatch:
		cfg = s.Patch
	case ToolAI:
		cfg = s.AI
	case ToolPrompt:
		cfg = s.Prompt
	case ToolInstall:
		cfg = s.Install
	case ToolEnsureDirs:
		cfg = s.EnsureDirs
	case ToolRecipe:
		cfg = s.Recipe
	case ToolSequence:
		cfg = s.Sequence
	case ToolParallel:
		cfg = s.Parallel
	case ToolConditional:
		cfg = s.Conditional
	default:
		return nil, fmt.Errorf("step %s: unknown tool %q", s.Name, s.Tool)
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := yaml.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}
