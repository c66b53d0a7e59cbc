package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// newPromptTool implements the Prompt tool (§4.5.5): display a message and
// bind the operator's answer to a variable. Non-interactive runs bind the
// declared default, or fail when there is none.
func newPromptTool(deps Dependencies) recipe.ToolFunc {
	return func(ctx context.Context, ectx *recipe.ExecutionContext) (any, any, []string, []string, error) {
		cfg := ectx.Step.Prompt

		interactive := deps.Config.Defaults.Interactive && !ectx.CollectMode
		if !interactive {
			if cfg.Default != "" {
				return map[string]any{cfg.Variable: cfg.Default}, nil, nil, nil, nil
			}
			return nil, nil, nil, nil, rerrors.PromptRequiredButNonInteractive(cfg.Variable)
		}

		message, err := renderText(cfg.Message, mergedRenderContext(ectx, nil))
		if err != nil {
			return nil, nil, nil, nil, rerrors.TemplateRenderFailed("prompt.message", err)
		}

		if cfg.Default != "" {
			fmt.Fprintf(os.Stdout, "%s [%s]: ", message, cfg.Default)
		} else {
			fmt.Fprintf(os.Stdout, "%s: ", message)
		}

		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" {
			answer = cfg.Default
		}
		if answer == "" {
			return nil, nil, nil, nil, rerrors.MissingRequiredVariable(cfg.Variable)
		}

		return map[string]any{cfg.Variable: answer}, nil, nil, nil, nil
	}
}
