package api

import (
	_ "embed"
	"net/http"
)

//go:embed static/openapi.yaml
var openAPISpec []byte

// swaggerUIVersion pins the CDN build rendering /docs.
const swaggerUIVersion = "5"

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<title>linkcrawler API</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui.css"/>
</head>
<body>
<div id="docs"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui-bundle.js"></script>
<script>SwaggerUIBundle({url: "/openapi.yaml", dom_id: "#docs"});</script>
</body>
</html>`

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	serveStatic(w, r, "application/yaml", openAPISpec)
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	serveStatic(w, r, "text/html; charset=utf-8", []byte(docsPage))
}

func serveStatic(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
