package provider

import (
	"context"
	"log/slog"

	"github.com/sym-studio/sym-go/internal/apperr"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const geminiName = "gemini"

// Gemini model identifiers.
const (
	GeminiFlash = "gemini-2.0-flash"
	GeminiPro   = "gemini-2.0-pro"
)

// GeminiProvider is the synchronous adapter: one remote call, one result.
type GeminiProvider struct {
	llm          llms.Model
	defaultModel string
}

var _ Provider = (*GeminiProvider)(nil)

// NewGemini creates a Gemini provider backed by the Google AI API.
func NewGemini(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, apperr.Validation("gemini provider requires an API key")
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(GeminiFlash),
	)
	if err != nil {
		return nil, apperr.ExternalService("Gemini", err.Error())
	}
	return &GeminiProvider{llm: client, defaultModel: GeminiFlash}, nil
}

// newGeminiWithModel injects an arbitrary llms.Model. Used by tests.
func newGeminiWithModel(m llms.Model) *GeminiProvider {
	return &GeminiProvider{llm: m, defaultModel: GeminiFlash}
}

// Name returns the registry key.
func (p *GeminiProvider) Name() string { return geminiName }

// Invoke generates content for input["prompt"] and maps the response into
// {text, usage}.
func (p *GeminiProvider) Invoke(ctx context.Context, model string, input Input, opts ...InvokeOption) (*Result, error) {
	o := applyOptions(opts)
	defer o.done()

	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		return nil, apperr.Validation("input.prompt is required")
	}
	if model == "" {
		model = p.defaultModel
	}

	slog.Info("generating content", "provider", geminiName, "model", model, "prompt_len", len(prompt))

	resp, err := p.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithModel(model),
	)
	if err != nil {
		return nil, apperr.ExternalService("Gemini", err.Error())
	}
	if len(resp.Choices) == 0 {
		return nil, apperr.ExternalService("Gemini", "no response choices")
	}

	choice := resp.Choices[0]
	usage := make(map[string]any, len(choice.GenerationInfo))
	for k, v := range choice.GenerationInfo {
		usage[k] = v
	}

	slog.Info("content generated", "provider", geminiName, "model", model, "response_len", len(choice.Content))

	return &Result{
		Output: map[string]any{"text": choice.Content, "usage": usage},
		Usage:  usage,
	}, nil
}

// Models lists the Gemini catalog entries.
func (p *GeminiProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "FLASH", Model: GeminiFlash, Provider: geminiName},
		{ID: "PRO", Model: GeminiPro, Provider: geminiName},
	}
}
