package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mikeboe/luma/pkg/settings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("provider returned no choices")

// ChatModel is the part of llms.Model the task handlers need.
type ChatModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Factory builds a configured client for the selected provider.
type Factory interface {
	Build(cfg settings.LLMSettings) (ChatModel, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg settings.LLMSettings) (ChatModel, error)

func (f FactoryFunc) Build(cfg settings.LLMSettings) (ChatModel, error) {
	return f(cfg)
}

// Builder is the default Factory backed by langchaingo.
type Builder struct {
	// HTTPClient is used for every provider call. nil means http.DefaultClient.
	HTTPClient *http.Client
}

func NewBuilder() *Builder {
	return &Builder{}
}

// ModelName returns the configured model or the default one.
func ModelName(cfg settings.LLMSettings) string {
	if m := strings.TrimSpace(cfg.Model); m != "" {
		return m
	}
	return settings.DefaultModel
}

func (b *Builder) Build(cfg settings.LLMSettings) (ChatModel, error) {
	info, err := Lookup(cfg.Provider)
	if err != nil {
		return nil, err
	}
	endpoint, err := Endpoint(cfg.Provider, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key for %s is not configured", cfg.Provider)
	}

	httpClient := b.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := ModelName(cfg)

	slog.Debug("Building provider client", "provider", cfg.Provider, "adapter", info.Adapter, "endpoint", endpoint, "model", model)

	switch info.Adapter {
	case AdapterOpenAICompatible:
		llm, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(model),
			openai.WithBaseURL(strings.TrimRight(endpoint, "/")),
			openai.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		return llm, nil
	case AdapterAnthropic:
		llm, err := anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(model),
			anthropic.WithBaseURL(strings.TrimRight(endpoint, "/")),
			anthropic.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported adapter %q for provider %s", info.Adapter, cfg.Provider)
	}
}

// Complete performs one non-streaming chat completion and returns the text of
// the first choice.
func Complete(ctx context.Context, model ChatModel, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
