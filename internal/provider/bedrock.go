package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sym-studio/sym-go/internal/apperr"
)

const bedrockName = "bedrock"

// Bedrock model identifiers.
const (
	BedrockClaudeHaiku  = "anthropic.claude-3-haiku-20240307-v1:0"
	BedrockClaudeSonnet = "anthropic.claude-3-5-sonnet-20240620-v1:0"
)

// converseAPI is the slice of the Bedrock runtime client this adapter uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider is a synchronous adapter over the AWS Bedrock Converse
// API. Credentials come from the standard AWS credential chain.
type BedrockProvider struct {
	client       converseAPI
	defaultModel string
}

var _ Provider = (*BedrockProvider)(nil)

// NewBedrock creates a Bedrock provider for the given region.
func NewBedrock(ctx context.Context, region string) (*BedrockProvider, error) {
	if region == "" {
		return nil, apperr.Validation("bedrock provider requires a region")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperr.ExternalService("Bedrock", err.Error())
	}
	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(cfg),
		defaultModel: BedrockClaudeHaiku,
	}, nil
}

// newBedrockWithClient injects an arbitrary Converse client. Used by tests.
func newBedrockWithClient(c converseAPI) *BedrockProvider {
	return &BedrockProvider{client: c, defaultModel: BedrockClaudeHaiku}
}

// Name returns the registry key.
func (p *BedrockProvider) Name() string { return bedrockName }

// Invoke sends input["prompt"] as a single user turn and maps the response
// into {text, usage}.
func (p *BedrockProvider) Invoke(ctx context.Context, model string, input Input, opts ...InvokeOption) (*Result, error) {
	o := applyOptions(opts)
	defer o.done()

	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		return nil, apperr.Validation("input.prompt is required")
	}
	if model == "" {
		model = p.defaultModel
	}

	slog.Info("generating content", "provider", bedrockName, "model", model, "prompt_len", len(prompt))

	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: prompt},
				},
			},
		},
	})
	if err != nil {
		return nil, apperr.ExternalService("Bedrock", err.Error())
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, apperr.ExternalService("Bedrock", "unexpected response shape")
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(text.Value)
		}
	}
	text := sb.String()
	if text == "" {
		return nil, apperr.ExternalService("Bedrock", "empty response")
	}

	usage := map[string]any{}
	if out.Usage != nil {
		usage["input_tokens"] = aws.ToInt32(out.Usage.InputTokens)
		usage["output_tokens"] = aws.ToInt32(out.Usage.OutputTokens)
		usage["total_tokens"] = aws.ToInt32(out.Usage.TotalTokens)
	}

	slog.Info("content generated", "provider", bedrockName, "model", model, "response_len", len(text))

	return &Result{
		Output: map[string]any{"text": text, "usage": usage},
		Usage:  usage,
	}, nil
}

// Models lists the Bedrock catalog entries.
func (p *BedrockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "CLAUDE_HAIKU", Model: BedrockClaudeHaiku, Provider: bedrockName},
		{ID: "CLAUDE_SONNET", Model: BedrockClaudeSonnet, Provider: bedrockName},
	}
}
