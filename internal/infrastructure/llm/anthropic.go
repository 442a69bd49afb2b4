package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"FeedbackFlow/internal/config"
	"FeedbackFlow/internal/ports"
)

// AnthropicClient implements ports.Completer on the Anthropic Messages API.
type AnthropicClient struct {
	inner anthropic.Client
	model anthropic.Model
}

var _ ports.Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client using an API key.
func NewAnthropicClient(cfg config.AIConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMisconfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return newAnthropic(cfg, opts), nil
}

// NewBedrockClient builds a client that signs requests with AWS credentials.
func NewBedrockClient(ctx context.Context, cfg config.AIConfig) (*AnthropicClient, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSProfile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
	}
	opts := []option.RequestOption{bedrock.WithLoadDefaultConfig(ctx, loadOpts...)}
	return newAnthropic(cfg, opts), nil
}

func newAnthropic(cfg config.AIConfig, opts []option.RequestOption) *AnthropicClient {
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeHaiku4_5_20251001
	}
	return &AnthropicClient{inner: anthropic.NewClient(opts...), model: model}
}

// Complete sends a single-turn message and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	return b.String(), nil
}
