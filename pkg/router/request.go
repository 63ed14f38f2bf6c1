package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
)

// Action is the discriminator of the cross-context message protocol.
type Action string

const (
	ActionSummarize      Action = "SUMMARIZE"
	ActionMindMap        Action = "MINDMAP"
	ActionChat           Action = "CHAT"
	ActionExtractContent Action = "EXTRACT_CONTENT"
)

// ErrUnsupportedAction is returned for actions this router does not serve.
var ErrUnsupportedAction = errors.New("unsupported action")

// Request is one inbound action. The variants below are the only
// implementations.
type Request interface {
	Action() Action
	isRequest()
}

// SummarizeRequest asks for a Markdown summary of page text. A nil Settings
// means "use the settings store".
type SummarizeRequest struct {
	Content  string
	Settings *settings.AppSettings
}

// MindMapRequest asks for a mind-map graph of page text.
type MindMapRequest struct {
	Content  string
	Settings *settings.AppSettings
}

// ChatRequest forwards a conversation.
type ChatRequest struct {
	Messages []tasks.ChatMessage
	Settings *settings.AppSettings
}

// ExtractRequest asks the content router for the article of a page snapshot.
type ExtractRequest struct {
	HTML string
	URL  string
}

func (SummarizeRequest) Action() Action { return ActionSummarize }
func (MindMapRequest) Action() Action   { return ActionMindMap }
func (ChatRequest) Action() Action      { return ActionChat }
func (ExtractRequest) Action() Action   { return ActionExtractContent }

func (SummarizeRequest) isRequest() {}
func (MindMapRequest) isRequest()   {}
func (ChatRequest) isRequest()      {}
func (ExtractRequest) isRequest()   {}

type wireRequest struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type contentPayload struct {
	Content  string          `json:"content"`
	Settings json.RawMessage `json:"settings"`
}

type chatPayload struct {
	Messages []tasks.ChatMessage `json:"messages"`
	Settings json.RawMessage     `json:"settings"`
}

type extractPayload struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

// Decode parses a {action, payload} message into its typed variant.
func Decode(raw []byte) (Request, error) {
	var msg wireRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if len(bytes.TrimSpace(msg.Payload)) == 0 {
		msg.Payload = json.RawMessage("{}")
	}

	switch msg.Action {
	case ActionSummarize, ActionMindMap:
		var p contentPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", msg.Action, err)
		}
		cfg, err := DecodeSettings(p.Settings)
		if err != nil {
			return nil, err
		}
		if msg.Action == ActionSummarize {
			return SummarizeRequest{Content: p.Content, Settings: cfg}, nil
		}
		return MindMapRequest{Content: p.Content, Settings: cfg}, nil
	case ActionChat:
		var p chatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", msg.Action, err)
		}
		cfg, err := DecodeSettings(p.Settings)
		if err != nil {
			return nil, err
		}
		return ChatRequest{Messages: p.Messages, Settings: cfg}, nil
	case ActionExtractContent:
		var p extractPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", msg.Action, err)
		}
		return ExtractRequest{HTML: p.HTML, URL: p.URL}, nil
	case "":
		return nil, errors.New("action is required")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, msg.Action)
	}
}

// DecodeSettings merges a payload settings record over the defaults. Absent
// or null settings decode to nil.
func DecodeSettings(raw json.RawMessage) (*settings.AppSettings, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	cfg, err := settings.Merge(settings.DefaultSettings(), trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &cfg, nil
}
