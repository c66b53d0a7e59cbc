package aicore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"

	"github.com/recipe-core/engine/internal/config"
	rerrors "github.com/recipe-core/engine/internal/errors"
)

// GenerateRequest is the fully-assembled input to one AI call.
type GenerateRequest struct {
	Provider    string
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// GenerateResult is one AI call's output plus the token counts the Cost
// Tracker needs.
type GenerateResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Transport performs one AI generation call; resolution among the three
// kinds is described in §4.6.5.
type Transport interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// ErrDeferred signals that a transport did not generate anything because
// the run is deferring to a Pass-1 document (stdout mode); the ai tool
// translates this into the exit-code-2 deferral described in §6.
var ErrDeferred = errors.New("aicore: ai call deferred, prompt printed to stdout")

// StdoutTransport prints the assembled prompt and defers (§4.5.2 "stdout"
// and "off" modes).
type StdoutTransport struct {
	Writer io.Writer
}

func (t StdoutTransport) Generate(_ context.Context, req GenerateRequest) (GenerateResult, error) {
	var doc strings.Builder
	if req.System != "" {
		doc.WriteString(req.System)
		doc.WriteString("\n\n")
	}
	doc.WriteString(req.Prompt)
	fmt.Fprintln(t.Writer, doc.String())
	return GenerateResult{}, ErrDeferred
}

// CommandTransport spawns a subprocess with the prompt as an argv
// substitution (`{prompt}`) or, if no such placeholder is present, piped to
// stdin (§4.5.2 "command" mode).
type CommandTransport struct {
	Command string
}

func (t CommandTransport) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	line := t.Command
	if line == "" {
		return GenerateResult{}, rerrors.AITransportFailed("command", fmt.Errorf("no command configured"))
	}
	viaStdin := !strings.Contains(line, "{prompt}")
	if !viaStdin {
		line = strings.ReplaceAll(line, "{prompt}", req.Prompt)
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return GenerateResult{}, rerrors.AITransportFailed("command", fmt.Errorf("empty command"))
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if viaStdin {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}
	out, err := cmd.Output()
	if err != nil {
		return GenerateResult{}, rerrors.AITransportFailed("command", err)
	}
	text := string(out)
	return GenerateResult{
		Text:         text,
		InputTokens:  EstimateTokens(req.Prompt),
		OutputTokens: EstimateTokens(text),
	}, nil
}

// ApiTransport calls a provider SDK directly (§4.5.2 "api" mode), resolving
// the API key from config per-request so one Pipeline can serve steps that
// each name a different provider. Grounded on the teacher pack's own
// provider usage: github.com/anthropics/anthropic-sdk-go (steveyegge-beads)
// and github.com/sashabaranov/go-openai (ilkoid-poncho-ai).
type ApiTransport struct {
	Config *config.Config
}

// ValidateEager checks that the resolved provider and its API key are
// present without making a network call, per §4.6.5's "ApiTransport
// validates presence of provider and API key eagerly".
func (t *ApiTransport) ValidateEager(provider string) error {
	if provider == "" {
		provider = t.Config.AI.DefaultProvider
	}
	pc := t.Config.ProviderConfig(provider)
	if pc.APIKeyEnvVar == "" {
		return rerrors.AIProviderUnavailable(provider)
	}
	if os.Getenv(pc.APIKeyEnvVar) == "" {
		return rerrors.AIAPIKeyMissing(provider, pc.APIKeyEnvVar)
	}
	return nil
}

func (t *ApiTransport) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	provider := req.Provider
	if provider == "" {
		provider = t.Config.AI.DefaultProvider
	}
	pc := t.Config.ProviderConfig(provider)
	apiKey := ""
	if pc.APIKeyEnvVar != "" {
		apiKey = os.Getenv(pc.APIKeyEnvVar)
	}
	if apiKey == "" {
		return GenerateResult{}, rerrors.AIAPIKeyMissing(provider, pc.APIKeyEnvVar)
	}
	model := req.Model
	if model == "" {
		model = pc.Model
	}

	switch provider {
	case "anthropic":
		return generateAnthropic(ctx, apiKey, model, req)
	case "openai":
		return generateOpenAI(ctx, apiKey, model, req)
	default:
		return GenerateResult{}, rerrors.AIProviderUnavailable(provider)
	}
}

func generateAnthropic(ctx context.Context, apiKey, model string, req GenerateRequest) (GenerateResult, error) {
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return GenerateResult{}, rerrors.AITransportFailed("api", err)
		}
		return GenerateResult{}, rerrors.AIGenerationFailed(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return GenerateResult{
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func generateOpenAI(ctx context.Context, apiKey, model string, req GenerateRequest) (GenerateResult, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(apiKey)
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{Model: model, Messages: messages}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return GenerateResult{}, rerrors.AIGenerationFailed(err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, rerrors.AIGenerationFailed(fmt.Errorf("no choices returned"))
	}
	return GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ResolveMode implements §4.5.2's mode selection: an explicit non-auto mode
// wins outright (off behaves as stdout); auto picks api if the provider's
// API key env var is set, else command if one is configured, else stdout.
func ResolveMode(cfg *config.Config, provider string) string {
	switch cfg.AI.Mode {
	case "", "auto":
		// fall through to auto-detection below
	case "off":
		return "stdout"
	default:
		return cfg.AI.Mode
	}

	if provider == "" {
		provider = cfg.AI.DefaultProvider
	}
	pc := cfg.ProviderConfig(provider)
	if pc.APIKeyEnvVar != "" && os.Getenv(pc.APIKeyEnvVar) != "" {
		return "api"
	}
	if pc.Command != "" {
		return "command"
	}
	return "stdout"
}
