package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check with last refresh and stale flag"},
	{Path: "/api/prayer/today", Method: "GET", Description: "Prayer times for today, or ?date=YYYY-MM-DD"},
	{Path: "/api/prayer/next", Method: "GET", Description: "Next prayer and time remaining"},
	{Path: "/api/zones", Method: "GET", Description: "Known JAKIM zones"},
	{Path: "/api/state", Method: "GET", Description: "All state variables (booleans, numbers, strings, jsons)"},
	{Path: "/api/shadow", Method: "GET", Description: "Shadow state of every plugin"},
	{Path: "/api/refresh", Method: "POST", Description: "Refresh the prayer schedule now"},
	{Path: "/api/reset", Method: "POST", Description: "Re-run startup logic of every plugin"},
	{Path: "/api/azan/play", Method: "POST", Description: "Play the azan once: {\"prayer\", \"media_player\", \"volume\"}"},
	{Path: "/audio/{file}", Method: "GET", Description: "Bundled azan audio"},
}

// handleSitemap lists the endpoints. It answers 404 so automations probing
// the root never mistake it for data.
func (s *Server) handleSitemap(c *gin.Context) {
	preferHTML := false
	for _, part := range strings.Split(c.GetHeader("Accept"), ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mediaType == "text/html" {
			preferHTML = true
			break
		}
	}

	if preferHTML {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(sitemapHTML()))
	} else {
		c.Data(http.StatusNotFound, "text/plain; charset=utf-8", []byte(sitemapText()))
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", c.ClientIP()),
		zap.Bool("html_format", preferHTML))
}

func sitemapHTML() string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
    <title>solatsync API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        h2 { color: #569cd6; margin-top: 30px; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
        a { color: #569cd6; text-decoration: none; }
    </style>
</head>
<body>
    <h1>solatsync API</h1>
    <p>Waktu Solat Malaysia prayer times and azan playback for Home Assistant.</p>
    <h2>Available Endpoints</h2>
`)
	for _, ep := range endpoints {
		fmt.Fprintf(&b, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
	}
	b.WriteString(`    <h2>Examples</h2>
    <div class="endpoint">
        <div>Next prayer:</div>
        <div class="description">curl <a href="/api/prayer/next">http://localhost:8080/api/prayer/next</a></div>
    </div>
</body>
</html>
`)
	return b.String()
}

func sitemapText() string {
	var b strings.Builder
	b.WriteString("solatsync API\n")
	b.WriteString("=============\n\n")
	b.WriteString("Available endpoints:\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "  %-6s %-20s %s\n", ep.Method, ep.Path, ep.Description)
	}
	b.WriteString("\nExamples:\n\n")
	b.WriteString("  Next prayer:\n")
	b.WriteString("    curl http://localhost:8080/api/prayer/next\n\n")
	b.WriteString("  Play the maghrib azan:\n")
	b.WriteString("    curl -X POST -d '{\"prayer\":\"maghrib\"}' http://localhost:8080/api/azan/play\n\n")
	return b.String()
}
