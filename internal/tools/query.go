package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newQueryTool implements the Query tool (§4.5.4): parse a structured file
// in one of four formats, evaluate dot-path checks and an optional
// expr-lang expression against it.
func newQueryTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Query

		path := cfg.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(deps.ProjectDir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, nil, nil, rerrors.QueryFailed(cfg.File, err)
		}

		format := cfg.Format
		if format == "" {
			format = detectQueryFormat(path)
		}
		data, err := parseQueryDocument(format, raw)
		if err != nil {
			return nil, nil, nil, nil, rerrors.QueryFailed(cfg.File, err)
		}

		output := map[string]any{}
		for _, check := range cfg.Checks {
			val, found := dotPathLookup(data, check.Path)
			if check.Export != "" {
				output[check.Export] = val
			}
			if check.ExportExists != "" {
				output[check.ExportExists] = found && val != nil && val != false
			}
		}

		var toolResult any
		if cfg.Expression != "" {
			val, err := evalQueryExpression(cfg.Expression, data)
			if err != nil {
				return nil, nil, nil, nil, rerrors.QueryFailed(cfg.File, err)
			}
			if len(cfg.Checks) == 0 {
				output["value"] = val
			} else {
				toolResult = map[string]any{"value": val}
			}
		}

		return output, toolResult, nil, nil, nil
	}
}

func detectQueryFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".env":
		return "env"
	default:
		return "json"
	}
}

func parseQueryDocument(format string, raw []byte) (any, error) {
	switch format {
	case "yaml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return normalizeYAML(v), nil
	case "toml":
		var v map[string]any
		if err := toml.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case "env":
		return parseEnvFile(raw), nil
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// normalizeYAML converts yaml.v3's map[string]interface{} nodes (already
// string-keyed) recursively so dotPathLookup can treat YAML and JSON
// documents identically.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

func parseEnvFile(raw []byte) map[string]any {
	out := make(map[string]any)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		out[key] = val
	}
	return out
}

// dotPathLookup resolves a dot-separated path (e.g. "a.b.c") against a
// decoded document of maps (and, for numeric segments, slices). Returns
// found=false if any segment is absent.
func dotPathLookup(data any, path string) (any, bool) {
	cur := data
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		switch t := cur.(type) {
		case map[string]any:
			v, ok := t[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, false
			}
			cur = t[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// evalQueryExpression evaluates expr against a sandbox whose only binding is
// `data` (§4.5.4).
func evalQueryExpression(exprStr string, data any) (any, error) {
	program, err := expr.Compile(exprStr)
	if err != nil {
		return nil, fmt.Errorf("compiling expression: %w", err)
	}
	out, err := expr.Run(program, map[string]any{"data": data})
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	return out, nil
}
