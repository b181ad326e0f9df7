// Package llms adapts concrete model providers to the step-generation
// capability. Only Anthropic is wired today; the prompt and parsing layers
// are provider-neutral.
package llms

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
	"github.com/introspectai/learnloop/pkg/logging"
)

// Shorthand model ids accepted in configuration.
var modelNameMapping = map[string]anthropic.Model{
	"claude-sonnet-4-5": anthropic.ModelClaudeSonnet4_5_20250929,
	"claude-opus-4-1":   anthropic.ModelClaudeOpus4_1_20250805,
	"claude-3-haiku":    anthropic.ModelClaude_3_Haiku_20240307,
}

func normalizeModelName(name string) anthropic.Model {
	if normalized, ok := modelNameMapping[name]; ok {
		return normalized
	}
	return anthropic.Model(name)
}

// AnthropicGenerator implements core.StepGenerator on the Anthropic
// Messages API.
type AnthropicGenerator struct {
	client      *anthropic.Client
	model       anthropic.Model
	maxTokens   int
	temperature float64
	logger      *logging.Logger
}

// NewAnthropicGenerator creates a generator from configuration. The API key
// falls back to ANTHROPIC_API_KEY.
func NewAnthropicGenerator(cfg config.LLMConfig, logger *logging.Logger) (*AnthropicGenerator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicGenerator{
		client:      &client,
		model:       normalizeModelName(cfg.ModelID),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// GenerateStep asks the model for the next step and parses the reply.
// Transport and API failures surface as ProviderFailed so the orchestrator
// applies its retry policy.
func (g *AnthropicGenerator) GenerateStep(ctx context.Context, conv *core.ConversationContext) (*core.Step, error) {
	prompt := BuildPrompt(conv)

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: g.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   int64(g.maxTokens),
		Temperature: anthropic.Float(g.temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) {
			g.logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ProviderFailed, "step generation request failed"),
			errors.Fields{"model": string(g.model)})
	}
	if message == nil || len(message.Content) == 0 {
		return nil, errors.New(errors.ProviderFailed, "received empty response from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	g.logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return ParseStep(responseText), nil
}
