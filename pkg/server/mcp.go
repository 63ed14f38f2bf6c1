package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mikeboe/luma/pkg/router"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ContentArgs and ChatArgs take settings as a partial record merged over the
// defaults, the same way message payloads are decoded.
type ContentArgs struct {
	Content  string         `json:"content" jsonschema:"plain text of the page"`
	Settings map[string]any `json:"settings,omitempty" jsonschema:"settings for this call; the stored settings are used when omitted"`
}

type ChatArgs struct {
	Messages []tasks.ChatMessage `json:"messages" jsonschema:"conversation so far, oldest first"`
	Settings map[string]any      `json:"settings,omitempty" jsonschema:"settings for this call; the stored settings are used when omitted"`
}

type ExtractArgs struct {
	HTML string `json:"html" jsonschema:"serialized HTML of the page"`
	URL  string `json:"url,omitempty" jsonschema:"page URL used to resolve relative links"`
}

// NewMCPServer exposes the router actions as MCP tools.
func NewMCPServer(background, content *router.Router) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: "luma-mcp", Version: "1.0.0"}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "summarize",
		Description: "Summarize page text as Markdown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ContentArgs) (*mcp.CallToolResult, any, error) {
		cfg, err := toolSettings(args.Settings)
		if err != nil {
			return nil, nil, err
		}
		return toolResult(background.Call(ctx, router.SummarizeRequest{Content: args.Content, Settings: cfg}))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "mindmap",
		Description: "Build a mind-map graph (nodes and edges) of page text.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ContentArgs) (*mcp.CallToolResult, any, error) {
		cfg, err := toolSettings(args.Settings)
		if err != nil {
			return nil, nil, err
		}
		return toolResult(background.Call(ctx, router.MindMapRequest{Content: args.Content, Settings: cfg}))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "chat",
		Description: "Continue a conversation with the configured model.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ChatArgs) (*mcp.CallToolResult, any, error) {
		cfg, err := toolSettings(args.Settings)
		if err != nil {
			return nil, nil, err
		}
		return toolResult(background.Call(ctx, router.ChatRequest{Messages: args.Messages, Settings: cfg}))
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "extract_content",
		Description: "Extract the readable article from page HTML.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ExtractArgs) (*mcp.CallToolResult, any, error) {
		return toolResult(content.Call(ctx, router.ExtractRequest{HTML: args.HTML, URL: args.URL}))
	})

	return s
}

// NewMCPHandler serves s over streamable HTTP.
func NewMCPHandler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

func toolSettings(args map[string]any) (*settings.AppSettings, error) {
	if args == nil {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return router.DecodeSettings(raw)
}

// toolResult turns an envelope into tool output. Failures become tool errors.
func toolResult(env router.Envelope) (*mcp.CallToolResult, any, error) {
	if !env.Success {
		return nil, nil, errors.New(env.Error)
	}

	var text string
	switch v := env.Data.(type) {
	case string:
		text = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode result: %w", err)
		}
		text = string(data)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}
