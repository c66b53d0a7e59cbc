package recipe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	rerrors "github.com/recipe-core/engine/internal/errors"
)

// Prompter asks the user a question and returns their raw answer. Kept as
// an interface so the engine core stays free of terminal I/O; the CLI
// supplies a concrete implementation (see cmd/recipe).
type Prompter interface {
	Prompt(name string, def VariableDef) (string, error)
}

// ResolveVariables implements the Variable Resolver contract (§4.2):
// defaults -> CLI overlay -> prompt-or-fail for the rest -> per-variable
// validation. Set prompter to nil for non-interactive runs.
func ResolveVariables(defs map[string]VariableDef, cliInputs map[string]any, interactive bool, prompter Prompter) (map[string]any, error) {
	bound := make(map[string]any, len(defs))

	// Step 1: defaults.
	for name, def := range defs {
		if def.Default != nil {
			bound[name] = def.Default
		}
	}

	// Step 2: CLI overlay, validated against the declared type.
	for name, raw := range cliInputs {
		def, known := defs[name]
		if !known {
			bound[name] = raw
			continue
		}
		coerced, err := coerce(def.Type, raw)
		if err != nil {
			return nil, rerrors.VariableValidationFailed(name, err.Error())
		}
		bound[name] = coerced
	}

	// Step 3: missing required variables.
	for name, def := range defs {
		if _, has := bound[name]; has {
			continue
		}
		if !def.Required {
			continue
		}
		if !interactive || prompter == nil {
			return nil, rerrors.MissingRequiredVariable(name)
		}
		answer, err := prompter.Prompt(name, def)
		if err != nil {
			return nil, err
		}
		coerced, err := coerce(def.Type, answer)
		if err != nil {
			return nil, rerrors.VariableValidationFailed(name, err.Error())
		}
		bound[name] = coerced
	}

	// Step 4: per-variable validation (pattern, enum values).
	for name, def := range defs {
		val, has := bound[name]
		if !has {
			continue
		}
		if err := validateValue(name, def, val); err != nil {
			return nil, err
		}
	}

	return bound, nil
}

// coerce converts a raw value (typically a CLI string, but may already be
// typed for in-process callers) to the variable's declared type.
func coerce(t VariableType, raw any) (any, error) {
	switch t {
	case VarString, VarEnum:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil

	case VarNumber:
		switch v := raw.(type) {
		case float64, int:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("not a valid number: %q", v)
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to number", raw)

	case VarBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
			return nil, fmt.Errorf("not a valid boolean: %q", v)
		}
		return nil, fmt.Errorf("cannot coerce %T to boolean", raw)

	case VarArray, VarObject:
		switch v := raw.(type) {
		case string:
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil, fmt.Errorf("not valid JSON for %s: %w", t, err)
			}
			return decoded, nil
		default:
			return raw, nil
		}
	}
	return raw, nil
}

// validateValue applies pattern and enum validation per §4.2. No numeric
// range check is made; VariableDef carries no bounds.
func validateValue(name string, def VariableDef, val any) error {
	if def.Pattern != "" {
		s, ok := val.(string)
		if !ok {
			return rerrors.VariableValidationFailed(name, "pattern validation requires a string value")
		}
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return rerrors.VariableValidationFailed(name, "invalid pattern: "+err.Error())
		}
		if !re.MatchString(s) {
			return rerrors.VariableValidationFailed(name, fmt.Sprintf("value %q does not match pattern %q", s, def.Pattern))
		}
	}

	if def.Type == VarEnum && len(def.Values) > 0 {
		s := stringify(val)
		ok := false
		for _, allowed := range def.Values {
			if s == allowed {
				ok = true
				break
			}
		}
		if !ok {
			return rerrors.VariableValidationFailed(name, fmt.Sprintf("value %q is not one of %v", s, def.Values))
		}
	}

	return nil
}
