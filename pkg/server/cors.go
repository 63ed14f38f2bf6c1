package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the listed origins. Browser extension schemes and a single
// trailing wildcard such as chrome-extension://* are accepted. An empty list
// rejects every cross-origin request.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins:           origins,
		AllowMethods:           []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:           []string{"Origin", "Content-Type", "Accept", "X-Request-Id", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposeHeaders:          []string{"Content-Length", "X-Request-Id", "Mcp-Session-Id"},
		AllowCredentials:       !allowsAll(origins),
		AllowWildcard:          true,
		AllowBrowserExtensions: true,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(cfg)
}

// allowsAll reports a wildcard origin list, which cors rejects together with
// credentials.
func allowsAll(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
