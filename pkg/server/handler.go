package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikeboe/luma/pkg/database"
	"github.com/mikeboe/luma/pkg/provider"
	"github.com/mikeboe/luma/pkg/router"
	"github.com/mikeboe/luma/pkg/settings"
)

const requestIDHeader = "X-Request-Id"

// LogReader returns stored request logs.
type LogReader interface {
	RequestLogs(ctx context.Context, requestID string) ([]database.RequestLog, error)
}

type Handler struct {
	Background *router.Router
	Content    *router.Router
	Store      *settings.Store
	Logs       LogReader
	MCP        http.Handler
	Logger     *slog.Logger
}

func NewHandler(background, content *router.Router, store *settings.Store, logs LogReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Background: background,
		Content:    content,
		Store:      store,
		Logs:       logs,
		MCP:        NewMCPHandler(NewMCPServer(background, content)),
		Logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.Any("/mcp", gin.WrapH(h.MCP))
	api := r.Group("/api")
	api.Use(requestID())
	{
		api.POST("/messages", h.postMessage(h.Background))
		api.POST("/content", h.postMessage(h.Content))

		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.putSettings)
		api.DELETE("/settings", h.resetSettings)
		api.GET("/settings/events", h.settingsEvents)

		api.GET("/providers", h.listProviders)
		api.GET("/requests/:id/logs", h.getRequestLogs)
	}
}

// health reports ready once the settings record has been loaded.
func (h *Handler) health(c *gin.Context) {
	if !h.Store.Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting", "settingsLoaded": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "settingsLoaded": true})
}

// requestID tags every API request with a uuid, reusing a valid incoming one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(router.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// postMessage answers a {action, payload} message with its envelope. The
// status is 200 whenever an envelope is produced.
func (h *Handler) postMessage(rt *router.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, router.Fail(err))
			return
		}
		c.JSON(http.StatusOK, rt.Handle(c.Request.Context(), raw))
	}
}

// publicSettings is the record as served over HTTP. The API key never leaves
// the process; HasAPIKey tells clients whether one is stored.
type publicSettings struct {
	LLM      publicLLM      `json:"llm"`
	Language string         `json:"language"`
	Theme    settings.Theme `json:"theme"`
}

type publicLLM struct {
	Provider  settings.Provider `json:"provider"`
	BaseURL   string            `json:"baseUrl,omitempty"`
	Model     string            `json:"model"`
	HasAPIKey bool              `json:"hasApiKey"`
}

func redact(s settings.AppSettings) publicSettings {
	return publicSettings{
		LLM: publicLLM{
			Provider:  s.LLM.Provider,
			BaseURL:   s.LLM.BaseURL,
			Model:     s.LLM.Model,
			HasAPIKey: s.LLM.APIKey != "",
		},
		Language: s.Language,
		Theme:    s.Theme,
	}
}

// omitsAPIKey reports an llm object without an apiKey field, which is what a
// client holding only the redacted record sends back.
func omitsAPIKey(raw []byte) bool {
	var body struct {
		LLM map[string]json.RawMessage `json:"llm"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.LLM == nil {
		return false
	}
	_, ok := body.LLM["apiKey"]
	return !ok
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, redact(h.Store.Settings()))
}

// putSettings merges the body over the current record, so partial updates
// such as {"theme":"dark"} are accepted. An llm object without apiKey keeps
// the stored key.
func (h *Handler) putSettings(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := h.Store.Settings()
	next, err := settings.Merge(current, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if omitsAPIKey(raw) {
		next.LLM.APIKey = current.LLM.APIKey
	}
	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.Save(c.Request.Context(), next); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Logger.InfoContext(c.Request.Context(), "Settings updated", "provider", next.LLM.Provider, "language", next.Language, "theme", next.Theme)
	c.JSON(http.StatusOK, redact(next))
}

func (h *Handler) resetSettings(c *gin.Context) {
	if err := h.Store.Reset(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, redact(h.Store.Settings()))
}

// settingsEvents streams the redacted record and then every change as SSE.
func (h *Handler) settingsEvents(c *gin.Context) {
	updates := make(chan publicSettings, 8)
	unsubscribe := h.Store.Subscribe(func(s settings.AppSettings) {
		select {
		case updates <- redact(s):
		default:
			// slow reader; it still gets the next change
		}
	})
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	if !writeEvent(c, redact(h.Store.Settings())) {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			if !writeEvent(c, s) {
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("data: ")); err != nil {
		return false
	}
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
	return true
}

func (h *Handler) listProviders(c *gin.Context) {
	c.JSON(http.StatusOK, provider.Catalog())
}

func (h *Handler) getRequestLogs(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}
	if h.Logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "request logs require the postgres backend"})
		return
	}

	logs, err := h.Logs.RequestLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []database.RequestLog{}
	}
	c.JSON(http.StatusOK, logs)
}
