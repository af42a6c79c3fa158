package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/citywalker/go-city-walker/config"
)

// Provider is the narrow contract both LLM backends implement. Generate
// applies the provider's own per-call timeout.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var _ Provider = (*GroqProvider)(nil)
var _ Provider = (*GeminiProvider)(nil)

// GroqProvider is the fast primary, reached through Groq's OpenAI-compatible
// endpoint.
type GroqProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewGroqProvider(apiKey, baseURL, model string, timeout time.Duration) *GroqProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GroqProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.3,
		MaxTokens:   4096,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("groq completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiProvider is the slower fallback.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = "gemma-3-4b-it"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &GeminiProvider{client: client, model: model, timeout: timeout}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return result.Text(), nil
}

// NewProviderFromEnv picks the first provider whose credential is present:
// GROQ_API_KEY wins over GEMINI_API_KEY.
func NewProviderFromEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		logger.Info("Using Groq LLM provider", slog.String("model", cfg.LLM.GroqModel))
		return NewGroqProvider(key, cfg.LLM.GroqBaseURL, cfg.LLM.GroqModel, cfg.LLM.PrimaryTimeout), nil
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		p, err := NewGeminiProvider(ctx, key, cfg.LLM.GeminiModel, cfg.LLM.FallbackTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Gemini LLM provider", slog.String("model", cfg.LLM.GeminiModel))
		return p, nil
	}
	return nil, fmt.Errorf("no LLM credentials: set GROQ_API_KEY or GEMINI_API_KEY")
}
