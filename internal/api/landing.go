package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PDF Chat Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding: 3rem 1rem; }
  .card { max-width: 640px; width: 100%; background: #1e293b; border-radius: 12px; padding: 2rem; }
  h1 { font-size: 1.5rem; margin: 0 0 0.5rem; }
  p { color: #94a3b8; }
  code { font-family: "SF Mono", Menlo, monospace; color: #a5b4fc; }
  li { margin: 0.25rem 0; }
</style>
</head>
<body>
<div class="card">
  <h1>PDF Chat Server</h1>
  <p>Upload PDFs, attach them to conversations and ask questions grounded in their pages.</p>
  <ul>
    <li><code>POST /api/documents</code> upload a PDF</li>
    <li><code>POST /api/conversations</code> start a conversation</li>
    <li><code>POST /api/conversations/{id}/messages</code> ask a question</li>
    <li><code>POST /api/search</code> search passages</li>
    <li><code>GET /api/models</code> available models</li>
    <li><code>/mcp</code> MCP Streamable HTTP</li>
    <li><code>GET /health</code> health check</li>
  </ul>
</div>
</body>
</html>`

func landing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingHTML))
}
