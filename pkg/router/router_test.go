package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikeboe/luma/pkg/extract"
	"github.com/mikeboe/luma/pkg/provider"
	"github.com/mikeboe/luma/pkg/settings"
	"github.com/mikeboe/luma/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRunner records the payload of the last call.
type fakeRunner struct {
	mu      sync.Mutex
	content tasks.ContentPayload
	chat    tasks.ChatPayload
	err     error
	panics  bool
	release chan struct{}
}

func (f *fakeRunner) Summarize(ctx context.Context, p tasks.ContentPayload) (string, error) {
	if f.release != nil {
		<-f.release
	}
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	f.content = p
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "## Summary", nil
}

func (f *fakeRunner) MindMap(ctx context.Context, p tasks.ContentPayload) (*tasks.MindMapGraph, error) {
	f.mu.Lock()
	f.content = p
	f.mu.Unlock()
	return &tasks.MindMapGraph{
		Nodes: []tasks.MindMapNode{{ID: "1", Label: "Root"}},
		Edges: []tasks.MindMapEdge{},
	}, nil
}

func (f *fakeRunner) Chat(ctx context.Context, p tasks.ChatPayload) (string, error) {
	f.mu.Lock()
	f.chat = p
	f.mu.Unlock()
	return "Hello", nil
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Request
		wantErr error
	}{
		{
			name: "summarize without settings",
			raw:  `{"action":"SUMMARIZE","payload":{"content":"text"}}`,
			want: SummarizeRequest{Content: "text"},
		},
		{
			name: "mindmap",
			raw:  `{"action":"MINDMAP","payload":{"content":"text","settings":null}}`,
			want: MindMapRequest{Content: "text"},
		},
		{
			name: "chat",
			raw:  `{"action":"CHAT","payload":{"messages":[{"role":"user","content":"Hi"}]}}`,
			want: ChatRequest{Messages: []tasks.ChatMessage{{Role: "user", Content: "Hi"}}},
		},
		{
			name: "extract",
			raw:  `{"action":"EXTRACT_CONTENT","payload":{"html":"<p>x</p>","url":"https://a.example"}}`,
			want: ExtractRequest{HTML: "<p>x</p>", URL: "https://a.example"},
		},
		{
			name: "extract without payload",
			raw:  `{"action":"EXTRACT_CONTENT"}`,
			want: ExtractRequest{},
		},
		{
			name:    "unknown action",
			raw:     `{"action":"TRANSLATE","payload":{}}`,
			wantErr: ErrUnsupportedAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"action":"CHAT","payload":{"messages":"nope"}}`} {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestDecode_SettingsMergedOverDefaults(t *testing.T) {
	req, err := Decode([]byte(`{"action":"SUMMARIZE","payload":{"content":"x","settings":{"llm":{"provider":"custom","apiKey":"k","model":"llama3"}}}}`))
	require.NoError(t, err)

	s := req.(SummarizeRequest)
	require.NotNil(t, s.Settings)
	assert.Equal(t, settings.ProviderCustom, s.Settings.LLM.Provider)
	assert.Equal(t, settings.DefaultLanguage, s.Settings.Language)
	assert.Equal(t, settings.ThemeSystem, s.Settings.Theme)
}

func TestFail(t *testing.T) {
	env := Fail(errors.New("API key for openai is not configured"))
	assert.False(t, env.Success)
	assert.Nil(t, env.Data)
	assert.Equal(t, "API key for openai is not configured", env.Error)

	assert.NotEmpty(t, Fail(nil).Error)
	assert.NotEmpty(t, Fail(errors.New("")).Error)

	b, err := json.Marshal(Fail(errors.New("x")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"x"}`, string(b))
}

func TestDispatch_ExactlyOnce(t *testing.T) {
	r := NewBackground(&fakeRunner{}, nil, quiet)
	reply := r.Dispatch(context.Background(), SummarizeRequest{Content: "x"})

	env, ok := <-reply
	require.True(t, ok)
	assert.True(t, env.Success)
	assert.Equal(t, "## Summary", env.Data)

	_, ok = <-reply
	assert.False(t, ok, "channel must be closed after one envelope")
}

func TestDispatch_ReturnsBeforeCompletion(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	r := NewBackground(runner, nil, quiet)

	reply := r.Dispatch(context.Background(), SummarizeRequest{Content: "x"})
	select {
	case <-reply:
		t.Fatal("reply arrived before the handler finished")
	default:
	}

	close(runner.release)
	select {
	case env := <-reply:
		assert.True(t, env.Success)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestDispatch_IgnoresCancellation(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	r := NewBackground(runner, nil, quiet)

	ctx, cancel := context.WithCancel(context.Background())
	reply := r.Dispatch(ctx, SummarizeRequest{Content: "x"})
	cancel()
	close(runner.release)

	env := <-reply
	assert.True(t, env.Success)
}

func TestDispatch_PanicBecomesFailure(t *testing.T) {
	r := NewBackground(&fakeRunner{panics: true}, nil, quiet)
	env := r.Call(context.Background(), SummarizeRequest{Content: "x"})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "boom")
	assert.Nil(t, env.Data)
}

func TestDispatch_ErrorBecomesFailure(t *testing.T) {
	r := NewBackground(&fakeRunner{err: errors.New("chat completion failed: 401")}, nil, quiet)
	env := r.Call(context.Background(), SummarizeRequest{Content: "x"})
	assert.False(t, env.Success)
	assert.Equal(t, "chat completion failed: 401", env.Error)
}

func TestRouter_ActionSets(t *testing.T) {
	bg := NewBackground(&fakeRunner{}, nil, quiet)
	content := NewContent(nil, quiet)

	env := bg.Call(context.Background(), ExtractRequest{HTML: "<p>x</p>"})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unsupported action")

	env = content.Call(context.Background(), ChatRequest{})
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unsupported action")

	env = bg.Handle(context.Background(), []byte(`{"action":"TRANSLATE"}`))
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unsupported action")

	assert.True(t, bg.Serves(ActionChat))
	assert.False(t, bg.Serves(ActionExtractContent))
	assert.True(t, content.Serves(ActionExtractContent))
	assert.False(t, content.Serves(ActionSummarize))
}

func TestRouter_SettingsFallback(t *testing.T) {
	store := settings.NewStore(settings.NewMemoryBackend(), quiet)
	stored := settings.DefaultSettings()
	stored.LLM.APIKey = "sk-stored"
	stored.Language = "en"
	require.NoError(t, store.Save(context.Background(), stored))

	runner := &fakeRunner{}
	r := NewBackground(runner, store, quiet)

	env := r.Handle(context.Background(), []byte(`{"action":"MINDMAP","payload":{"content":"page"}}`))
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "sk-stored", runner.content.Settings.LLM.APIKey)
	assert.Equal(t, "en", runner.content.Settings.Language)

	env = r.Handle(context.Background(), []byte(`{"action":"MINDMAP","payload":{"content":"page","settings":{"llm":{"provider":"openai","apiKey":"sk-inline"}}}}`))
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "sk-inline", runner.content.Settings.LLM.APIKey)
}

func TestContentRouter_Extract(t *testing.T) {
	var gotURL string
	r := NewContent(func(ctx context.Context, rawHTML, pageURL string) (*extract.Article, error) {
		gotURL = pageURL
		return &extract.Article{Title: "T", Content: "body", Length: 4}, nil
	}, quiet)

	env := r.Handle(context.Background(), []byte(`{"action":"EXTRACT_CONTENT","payload":{"html":"<p>body</p>","url":"https://a.example/p"}}`))
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "https://a.example/p", gotURL)
	assert.Equal(t, "T", env.Data.(*extract.Article).Title)
}

func TestContentRouter_NoArticle(t *testing.T) {
	r := NewContent(nil, quiet)
	env := r.Call(context.Background(), ExtractRequest{HTML: ""})
	assert.False(t, env.Success)
	assert.Equal(t, extract.ErrNoArticle.Error(), env.Error)
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestChat_EndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		assert.Equal(t, "llama3", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "user", body.Messages[1].Role)
			assert.Equal(t, "Hi", body.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "llama3",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	service := tasks.NewService(&provider.Builder{HTTPClient: srv.Client()}, quiet)
	r := NewBackground(service, nil, quiet)

	msg := map[string]any{
		"action": "CHAT",
		"payload": map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "Hi"}},
			"settings": map[string]any{
				"llm":      map[string]string{"provider": "custom", "apiKey": "sk-test", "baseUrl": srv.URL + "/v1", "model": "llama3"},
				"language": "en",
			},
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	env := r.Handle(context.Background(), raw)
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "Hello", env.Data)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSummarize_MissingKey(t *testing.T) {
	service := tasks.NewService(provider.NewBuilder(), quiet)
	r := NewBackground(service, settings.NewStore(nil, quiet), quiet)

	env := r.Handle(context.Background(), []byte(`{"action":"SUMMARIZE","payload":{"content":"page"}}`))
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "API key")
}

type fixedModel struct{ reply string }

func (m fixedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func TestChat_DefaultSettingsWithStubProvider(t *testing.T) {
	var built settings.LLMSettings
	factory := provider.FactoryFunc(func(cfg settings.LLMSettings) (provider.ChatModel, error) {
		built = cfg
		return fixedModel{reply: "hi there"}, nil
	})
	r := NewBackground(tasks.NewService(factory, quiet), nil, quiet)

	raw, err := json.Marshal(map[string]any{
		"action": "CHAT",
		"payload": map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
			"settings": settings.DefaultSettings(),
		},
	})
	require.NoError(t, err)

	env := r.Handle(context.Background(), raw)
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "hi there", env.Data)
	assert.Equal(t, settings.DefaultSettings().LLM, built)
}
