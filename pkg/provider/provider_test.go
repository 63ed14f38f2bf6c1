package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikeboe/luma/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		provider settings.Provider
		baseURL  string
		want     string
		wantErr  bool
	}{
		{"openai ignores base url", settings.ProviderOpenAI, "https://proxy.example", OpenAIBaseURL, false},
		{"openai default", settings.ProviderOpenAI, "", OpenAIBaseURL, false},
		{"gemini ignores base url", settings.ProviderGemini, "https://anything.example", GeminiShimBaseURL, false},
		{"gemini default", settings.ProviderGemini, "", GeminiShimBaseURL, false},
		{"custom verbatim", settings.ProviderCustom, "https://x", "https://x", false},
		{"custom keeps trailing path", settings.ProviderCustom, "http://localhost:11434/v1/", "http://localhost:11434/v1/", false},
		{"custom without base url", settings.ProviderCustom, "", OpenAIBaseURL, false},
		{"claude explicit entry", settings.ProviderClaude, "https://ignored.example", AnthropicBaseURL, false},
		{"unknown provider", settings.Provider("mistral"), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Endpoint(tt.provider, tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpoint_IsPure(t *testing.T) {
	for _, p := range settings.Providers {
		first, err := Endpoint(p, "https://x")
		require.NoError(t, err)
		second, err := Endpoint(p, "https://x")
		require.NoError(t, err)
		assert.Equal(t, first, second, "provider %s", p)
	}
}

func TestCatalogCoversEveryProvider(t *testing.T) {
	require.NoError(t, checkRegistry())

	catalog := Catalog()
	require.Len(t, catalog, len(settings.Providers))
	for i, p := range settings.Providers {
		assert.Equal(t, p, catalog[i].ID)
	}
}

func TestModelName(t *testing.T) {
	assert.Equal(t, settings.DefaultModel, ModelName(settings.LLMSettings{}))
	assert.Equal(t, settings.DefaultModel, ModelName(settings.LLMSettings{Model: "  "}))
	assert.Equal(t, "gpt-4o-mini", ModelName(settings.LLMSettings{Model: "gpt-4o-mini"}))
}

func TestBuilder_Build_Errors(t *testing.T) {
	b := NewBuilder()

	_, err := b.Build(settings.LLMSettings{Provider: "mistral", APIKey: "k"})
	assert.Error(t, err)

	_, err = b.Build(settings.LLMSettings{Provider: settings.ProviderOpenAI})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestBuilder_Build_AllProviders(t *testing.T) {
	b := NewBuilder()
	for _, p := range settings.Providers {
		model, err := b.Build(settings.LLMSettings{Provider: p, APIKey: "k", BaseURL: "https://x"})
		require.NoError(t, err, "provider %s", p)
		assert.NotNil(t, model)
	}
}

func TestBuilder_OpenAICompatibleRequest(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"nodes\":[],\"edges\":[]}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	model, err := (&Builder{HTTPClient: srv.Client()}).Build(settings.LLMSettings{
		Provider: settings.ProviderCustom,
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/v1/",
		Model:    "test-model",
	})
	require.NoError(t, err)

	out, err := Complete(context.Background(), model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "system"),
		llms.TextParts(llms.ChatMessageTypeHuman, "hello"),
	}, llms.WithJSONMode())
	require.NoError(t, err)

	assert.Equal(t, `{"nodes":[],"edges":[]}`, out)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, gotBody["response_format"])
	assert.Len(t, gotBody["messages"], 2)
}

func TestBuilder_OpenAICompatibleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	model, err := (&Builder{HTTPClient: srv.Client()}).Build(settings.LLMSettings{
		Provider: settings.ProviderCustom,
		APIKey:   "bad",
		BaseURL:  srv.URL,
	})
	require.NoError(t, err)

	_, err = Complete(context.Background(), model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hello"),
	})
	assert.Error(t, err)
}

type stubModel struct {
	resp *llms.ContentResponse
	err  error
}

func (s stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return s.resp, s.err
}

func TestComplete(t *testing.T) {
	out, err := Complete(context.Background(), stubModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "first"}, {Content: "second"}},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = Complete(context.Background(), stubModel{resp: &llms.ContentResponse{}}, nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("connection refused")
	_, err = Complete(context.Background(), stubModel{err: boom}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(cfg settings.LLMSettings) (ChatModel, error) {
		called = true
		return stubModel{}, nil
	})
	_, err := f.Build(settings.DefaultSettings().LLM)
	require.NoError(t, err)
	assert.True(t, called)
}
