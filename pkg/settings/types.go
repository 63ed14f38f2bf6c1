package settings

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies an LLM vendor or compatible endpoint.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderCustom Provider = "custom"
)

// Providers lists every provider in display order.
var Providers = []Provider{ProviderOpenAI, ProviderGemini, ProviderClaude, ProviderCustom}

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// LLMSettings holds the provider connection. BaseURL only matters for the
// custom provider.
type LLMSettings struct {
	Provider Provider `json:"provider"`
	APIKey   string   `json:"apiKey"`
	BaseURL  string   `json:"baseUrl,omitempty"`
	Model    string   `json:"model"`
}

// AppSettings is the single persisted settings record.
type AppSettings struct {
	LLM      LLMSettings `json:"llm"`
	Language string      `json:"language"`
	Theme    Theme       `json:"theme"`
}

const (
	DefaultModel    = "gpt-3.5-turbo"
	DefaultLanguage = "zh-CN"
)

// DefaultSettings returns the first-run settings.
func DefaultSettings() AppSettings {
	return AppSettings{
		LLM: LLMSettings{
			Provider: ProviderOpenAI,
			APIKey:   "",
			Model:    DefaultModel,
		},
		Language: DefaultLanguage,
		Theme:    ThemeSystem,
	}
}

func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// Validate checks the record before it is saved.
func (s AppSettings) Validate() error {
	if !s.LLM.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", s.LLM.Provider)
	}
	if !s.Theme.Valid() {
		return errors.New("theme must be 'light', 'dark', or 'system'")
	}
	if strings.TrimSpace(s.Language) == "" {
		return errors.New("language is required")
	}
	return nil
}
