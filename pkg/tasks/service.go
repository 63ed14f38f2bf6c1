package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/luma/pkg/provider"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/tmc/langchaingo/llms"
)

// ContentPayload is the input of the summary and mind-map handlers.
type ContentPayload struct {
	Content  string               `json:"content"`
	Settings settings.AppSettings `json:"settings"`
}

// ChatMessage is one turn of a conversation. Role is user, assistant or system.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload is the input of the chat handler.
type ChatPayload struct {
	Messages []ChatMessage        `json:"messages"`
	Settings settings.AppSettings `json:"settings"`
}

// Service runs the summary, mind-map and chat tasks against the configured
// provider. It holds no per-request state.
type Service struct {
	Factory provider.Factory
	Logger  *slog.Logger
}

func NewService(factory provider.Factory, logger *slog.Logger) *Service {
	if factory == nil {
		factory = provider.NewBuilder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Factory: factory, Logger: logger}
}

// Summarize returns the Markdown summary of a page verbatim.
func (s *Service) Summarize(ctx context.Context, p ContentPayload) (string, error) {
	model, err := s.Factory.Build(p.Settings.LLM)
	if err != nil {
		return "", err
	}

	system, user := summaryPrompts(p.Settings.Language, p.Content)
	s.Logger.InfoContext(ctx, "Summarizing page", "provider", p.Settings.LLM.Provider, "content_len", len(p.Content))

	return provider.Complete(ctx, model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithModel(provider.ModelName(p.Settings.LLM)))
}

// MindMap asks for JSON output and decodes it into a graph.
func (s *Service) MindMap(ctx context.Context, p ContentPayload) (*MindMapGraph, error) {
	model, err := s.Factory.Build(p.Settings.LLM)
	if err != nil {
		return nil, err
	}

	system, user := mindMapPrompts(p.Settings.Language, p.Content)
	s.Logger.InfoContext(ctx, "Generating mind map", "provider", p.Settings.LLM.Provider, "content_len", len(p.Content))

	raw, err := provider.Complete(ctx, model, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, llms.WithModel(provider.ModelName(p.Settings.LLM)), llms.WithJSONMode())
	if err != nil {
		return nil, err
	}

	graph, err := ParseMindMap(raw)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to parse mind map response", "error", err, "raw_len", len(raw))
		return nil, err
	}
	if dangling := graph.DanglingEdges(); len(dangling) > 0 {
		s.Logger.WarnContext(ctx, "Mind map has edges to unknown nodes", "count", len(dangling))
	}
	return graph, nil
}

// Chat forwards the conversation with the language instruction prepended.
func (s *Service) Chat(ctx context.Context, p ChatPayload) (string, error) {
	messages, err := chatMessages(p.Settings.Language, p.Messages)
	if err != nil {
		return "", err
	}

	model, err := s.Factory.Build(p.Settings.LLM)
	if err != nil {
		return "", err
	}

	s.Logger.InfoContext(ctx, "Sending chat", "provider", p.Settings.LLM.Provider, "messages", len(p.Messages))

	return provider.Complete(ctx, model, messages, llms.WithModel(provider.ModelName(p.Settings.LLM)))
}

// chatMessages prepends the language instruction. System messages from the
// history are folded into that single leading message, separated by a blank
// line, since some adapters join system prompts with no separator.
func chatMessages(lang string, history []ChatMessage) ([]llms.MessageContent, error) {
	system := []string{chatSystem(lang)}
	out := make([]llms.MessageContent, 1, len(history)+1)
	for i, m := range history {
		role, err := messageType(m.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if role == llms.ChatMessageTypeSystem {
			system = append(system, m.Content)
			continue
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	out[0] = llms.TextParts(llms.ChatMessageTypeSystem, strings.Join(system, "\n\n"))
	return out, nil
}

func messageType(role string) (llms.ChatMessageType, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "user", "human":
		return llms.ChatMessageTypeHuman, nil
	case "assistant", "ai", "model":
		return llms.ChatMessageTypeAI, nil
	case "system":
		return llms.ChatMessageTypeSystem, nil
	default:
		return "", fmt.Errorf("unsupported message role %q", role)
	}
}
