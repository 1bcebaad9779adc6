package main

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultOpenAIModel = "gpt-4o-mini"
)

// Analyzer sends one prompt to a hosted model and returns its text.
// Implementations make a single attempt and keep the client's default timeout.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

type AIConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	GoogleAPIKey string `yaml:"google_api_key"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	BaseURL      string `yaml:"base_url"`
}

func (c AIConfig) modelOr(fallback string) string {
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func NewAnalyzer(ctx context.Context, cfg AIConfig) (Analyzer, error) {
	switch cfg.Provider {
	case "", "gemini":
		return newGeminiAnalyzer(ctx, cfg)
	case "agent":
		return newAgentAnalyzer(ctx, cfg)
	case "openai":
		return newOpenAIAnalyzer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

type geminiAnalyzer struct {
	client *genai.Client
	model  string
}

func newGeminiAnalyzer(ctx context.Context, cfg AIConfig) (*geminiAnalyzer, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiAnalyzer{client: client, model: cfg.modelOr(defaultGeminiModel)}, nil
}

func (a *geminiAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return firstCandidateText(resp)
}

// firstCandidateText returns candidates[0].content.parts[0].text.
func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0] == nil {
		return "", fmt.Errorf("%w: first candidate has no parts", ErrMalformedResponse)
	}
	return content.Parts[0].Text, nil
}

type openaiAnalyzer struct {
	client *openai.Client
	model  string
}

func newOpenAIAnalyzer(cfg AIConfig) *openaiAnalyzer {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &openaiAnalyzer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.modelOr(defaultOpenAIModel),
	}
}

func (a *openaiAnalyzer) Analyze(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
