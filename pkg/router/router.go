package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mikeboe/luma/pkg/extract"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
)

// Runner executes the LLM-backed actions.
type Runner interface {
	Summarize(ctx context.Context, p tasks.ContentPayload) (string, error)
	MindMap(ctx context.Context, p tasks.ContentPayload) (*tasks.MindMapGraph, error)
	Chat(ctx context.Context, p tasks.ChatPayload) (string, error)
}

// ExtractFunc produces the article of a page snapshot.
type ExtractFunc func(ctx context.Context, rawHTML, pageURL string) (*extract.Article, error)

// Router answers requests with exactly one Envelope each. A background router
// serves the LLM actions; a content router serves extraction.
type Router struct {
	name    string
	runner  Runner
	extract ExtractFunc
	store   *settings.Store
	logger  *slog.Logger
}

// NewBackground returns the router for SUMMARIZE, MINDMAP and CHAT. Requests
// without settings use the store's current snapshot.
func NewBackground(runner Runner, store *settings.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{name: "background", runner: runner, store: store, logger: logger}
}

// NewContent returns the router for EXTRACT_CONTENT.
func NewContent(fn ExtractFunc, logger *slog.Logger) *Router {
	if fn == nil {
		fn = extract.Extract
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{name: "content", extract: fn, logger: logger}
}

// Serves reports whether the router handles the action.
func (r *Router) Serves(a Action) bool {
	switch a {
	case ActionSummarize, ActionMindMap, ActionChat:
		return r.runner != nil
	case ActionExtractContent:
		return r.extract != nil
	}
	return false
}

// Dispatch starts the request and returns immediately. The channel receives
// exactly one envelope and is then closed. Cancelling ctx after dispatch does
// not abort the request.
func (r *Router) Dispatch(ctx context.Context, req Request) <-chan Envelope {
	reply := make(chan Envelope, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(reply)
		reply <- r.settle(ctx, req)
	}()
	return reply
}

// Call dispatches req and waits for its envelope.
func (r *Router) Call(ctx context.Context, req Request) Envelope {
	return <-r.Dispatch(ctx, req)
}

// Handle decodes a raw {action, payload} message and calls it.
func (r *Router) Handle(ctx context.Context, raw []byte) Envelope {
	req, err := Decode(raw)
	if err != nil {
		r.logger.WarnContext(ctx, "Rejected message", "router", r.name, "request_id", RequestID(ctx), "error", err)
		return Fail(err)
	}
	return r.Call(ctx, req)
}

func (r *Router) settle(ctx context.Context, req Request) (env Envelope) {
	start := time.Now()
	logger := r.logger.With("router", r.name, "request_id", RequestID(ctx))

	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "Handler panicked", "action", actionOf(req), "panic", p, "stack", string(debug.Stack()))
			env = Fail(fmt.Errorf("internal error: %v", p))
		}
	}()

	if req == nil {
		return Fail(fmt.Errorf("%w: empty request", ErrUnsupportedAction))
	}

	logger.InfoContext(ctx, "Handling request", "action", req.Action())
	data, err := r.route(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "Request failed", "action", req.Action(), "error", err, "duration", time.Since(start))
		return Fail(err)
	}
	logger.InfoContext(ctx, "Request completed", "action", req.Action(), "duration", time.Since(start))
	return OK(data)
}

func (r *Router) route(ctx context.Context, req Request) (any, error) {
	if !r.Serves(req.Action()) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, req.Action())
	}

	switch req := req.(type) {
	case SummarizeRequest:
		return r.runner.Summarize(ctx, tasks.ContentPayload{Content: req.Content, Settings: r.resolve(req.Settings)})
	case MindMapRequest:
		return r.runner.MindMap(ctx, tasks.ContentPayload{Content: req.Content, Settings: r.resolve(req.Settings)})
	case ChatRequest:
		return r.runner.Chat(ctx, tasks.ChatPayload{Messages: req.Messages, Settings: r.resolve(req.Settings)})
	case ExtractRequest:
		return r.extract(ctx, req.HTML, req.URL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, req.Action())
	}
}

func (r *Router) resolve(cfg *settings.AppSettings) settings.AppSettings {
	if cfg != nil {
		return *cfg
	}
	if r.store != nil {
		return r.store.Settings()
	}
	return settings.DefaultSettings()
}

func actionOf(req Request) Action {
	if req == nil {
		return ""
	}
	return req.Action()
}

type requestIDKey struct{}

// WithRequestID tags ctx with the id used to correlate log records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
