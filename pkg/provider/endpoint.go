package provider

import (
	"fmt"
	"strings"

	"github.com/mikeboe/luma/pkg/settings"
)

// Adapter names the wire protocol a provider is spoken to with.
type Adapter string

const (
	AdapterOpenAICompatible Adapter = "openai-compatible"
	AdapterAnthropic        Adapter = "anthropic"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	GeminiShimBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	AnthropicBaseURL  = "https://api.anthropic.com/v1"
)

// Info describes how a provider is reached.
type Info struct {
	ID                 settings.Provider `json:"id"`
	Name               string            `json:"name"`
	Adapter            Adapter           `json:"adapter"`
	DefaultBaseURL     string            `json:"default_base_url"`
	AllowCustomBaseURL bool              `json:"allow_custom_base_url"`
}

var registry = map[settings.Provider]Info{
	settings.ProviderOpenAI: {
		ID:             settings.ProviderOpenAI,
		Name:           "OpenAI",
		Adapter:        AdapterOpenAICompatible,
		DefaultBaseURL: OpenAIBaseURL,
	},
	settings.ProviderGemini: {
		ID:             settings.ProviderGemini,
		Name:           "Google Gemini",
		Adapter:        AdapterOpenAICompatible,
		DefaultBaseURL: GeminiShimBaseURL,
	},
	settings.ProviderClaude: {
		ID:             settings.ProviderClaude,
		Name:           "Anthropic Claude",
		Adapter:        AdapterAnthropic,
		DefaultBaseURL: AnthropicBaseURL,
	},
	settings.ProviderCustom: {
		ID:                 settings.ProviderCustom,
		Name:               "Custom (OpenAI compatible)",
		Adapter:            AdapterOpenAICompatible,
		DefaultBaseURL:     OpenAIBaseURL,
		AllowCustomBaseURL: true,
	},
}

func init() {
	if err := checkRegistry(); err != nil {
		panic(err)
	}
}

// checkRegistry fails when a provider has no table entry.
func checkRegistry() error {
	for _, p := range settings.Providers {
		info, ok := registry[p]
		if !ok {
			return fmt.Errorf("provider %q has no endpoint entry", p)
		}
		if info.DefaultBaseURL == "" || info.Adapter == "" {
			return fmt.Errorf("provider %q endpoint entry is incomplete", p)
		}
	}
	return nil
}

// Lookup returns the table entry for p.
func Lookup(p settings.Provider) (Info, error) {
	info, ok := registry[p]
	if !ok {
		return Info{}, fmt.Errorf("unsupported provider: %s", p)
	}
	return info, nil
}

// Endpoint resolves the base URL for a provider. It depends only on its
// arguments.
func Endpoint(p settings.Provider, baseURL string) (string, error) {
	info, err := Lookup(p)
	if err != nil {
		return "", err
	}
	if info.AllowCustomBaseURL {
		if strings.TrimSpace(baseURL) != "" {
			return baseURL, nil
		}
	}
	return info.DefaultBaseURL, nil
}

// Catalog lists every provider in display order.
func Catalog() []Info {
	out := make([]Info, 0, len(settings.Providers))
	for _, p := range settings.Providers {
		out = append(out, registry[p])
	}
	return out
}
