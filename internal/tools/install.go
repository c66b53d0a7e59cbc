package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// lockfileManagers maps a lockfile name to the package manager it implies,
// checked in this order (§4.5.5).
var lockfileManagers = []struct {
	file    string
	manager string
}{
	{"bun.lock", "bun"},
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"package-lock.json", "npm"},
}

func detectPackageManager(projectDir string) string {
	for _, lm := range lockfileManagers {
		if _, err := os.Stat(filepath.Join(projectDir, lm.file)); err == nil {
			return lm.manager
		}
	}
	return "bun"
}

// newInstallTool implements the Install tool (§4.5.5): detect (or accept an
// override) package manager, then run its install subcommand for the
// requested packages.
func newInstallTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Install

		manager := cfg.Manager
		if manager == "" {
			manager = detectPackageManager(deps.ProjectDir)
		}

		args := installArgs(manager, cfg.Packages, cfg.Dev)
		if ectx.DryRun {
			return map[string]any{"manager": manager, "args": args}, nil, nil, nil, nil
		}

		cmd := exec.CommandContext(ctx, manager, args...)
		cmd.Dir = deps.ProjectDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, nil, nil, nil, rerrors.InstallFailed(manager, errWithOutput(err, out))
		}

		return map[string]any{"manager": manager, "packages": cfg.Packages}, nil, nil, nil, nil
	}
}

func installArgs(manager string, packages []string, dev bool) []string {
	switch manager {
	case "yarn":
		args := append([]string{"add"}, packages...)
		if dev {
			args = append(args, "--dev")
		}
		if len(packages) == 0 {
			return []string{"install"}
		}
		return args
	case "pnpm", "npm", "bun":
		if len(packages) == 0 {
			return []string{"install"}
		}
		args := append([]string{"add"}, packages...)
		if dev {
			args = append(args, "-D")
		}
		return args
	default:
		return append([]string{"add"}, packages...)
	}
}

func errWithOutput(err error, out []byte) error {
	if len(out) == 0 {
		return err
	}
	return &outputError{err: err, output: string(out)}
}

type outputError struct {
	err    error
	output string
}

func (e *outputError) Error() string { return e.err.Error() + ": " + e.output }
func (e *outputError) Unwrap() error { return e.err }
