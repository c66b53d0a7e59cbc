package tools

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newShellTool implements the Shell tool (§4.5.3): run a command, capturing
// stdout/stderr/exit code when requested, with context cancellation and a
// per-step timeout. Adapted from the teacher's executor.ShellExecutor
// (process-group SIGTERM-then-SIGKILL shutdown), generalized to this
// engine's ShellConfig and error codes.
func newShellTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Shell

		command, err := renderText(cfg.Command, mergedRenderContext(ectx, nil))
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateRenderFailed("shell.command", err)
		}

		runCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}

		cmd := exec.Command("/bin/sh", "-c", command)
		if cfg.Cwd != "" {
			if filepath.IsAbs(cfg.Cwd) {
				cmd.Dir = cfg.Cwd
			} else {
				cmd.Dir = filepath.Join(deps.ProjectDir, cfg.Cwd)
			}
		} else {
			cmd.Dir = deps.ProjectDir
		}
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}

		var stdout, stderr bytes.Buffer
		if cfg.CaptureOutput {
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		if ectx.DryRun {
			return map[string]any{"stdout": "", "stderr": "", "exitCode": 0}, nil, nil, nil, nil
		}

		if err := cmd.Start(); err != nil {
			return nil, nil, nil, nil, rerrors.ShellNonZeroExit(command, -1).WithCause(err)
		}

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		var waitErr error
		select {
		case <-runCtx.Done():
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
				select {
				case <-done:
				case <-time.After(3 * time.Second):
					_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
					<-done
				}
			}
			if cfg.Timeout > 0 && ctx.Err() == nil {
				return nil, nil, nil, nil, rerrors.ShellTimeout(command)
			}
			return nil, nil, nil, nil, runCtx.Err()
		case waitErr = <-done:
		}

		exitCode := 0
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, nil, nil, nil, rerrors.ShellNonZeroExit(command, -1).WithCause(waitErr)
			}
		}
		if exitCode != 0 {
			return nil, nil, nil, nil, rerrors.ShellNonZeroExit(command, exitCode)
		}

		if !cfg.CaptureOutput {
			return nil, nil, nil, nil, nil
		}
		result := map[string]any{
			"stdout":   strings.TrimSuffix(stdout.String(), "\n"),
			"stderr":   strings.TrimSuffix(stderr.String(), "\n"),
			"exitCode": exitCode,
		}
		return result, result, nil, nil, nil
	}
}
