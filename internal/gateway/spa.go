// Package gateway - spa.go serves the built stamp picker frontend.
//
// DESIGN: Files under static.dir are served as-is. Any other GET/HEAD path
// gets index.html so client-side routes resolve. If index.html is missing
// (frontend not built yet) a minimal placeholder page is served instead.
package gateway

import (
	"bytes"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stamppicker/stamp-gateway/internal/monitoring"
)

type spaHandler struct {
	fsys  fs.FS
	dir   string
	index string
}

func newSPAHandler(dir, index string) *spaHandler {
	h := &spaHandler{fsys: os.DirFS(dir), dir: dir, index: index}
	if _, err := fs.Stat(h.fsys, index); err != nil {
		log.Warn().Str("dir", dir).Str("index", index).Msg("frontend not found, serving placeholder page")
	}
	return h
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setRoute(r, monitoring.RouteStatic)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" && name != h.index {
		if info, err := fs.Stat(h.fsys, name); err == nil && !info.IsDir() {
			http.ServeFileFS(w, r, h.fsys, name)
			return
		}
	}
	h.serveIndex(w, r)
}

// serveIndex serves the app shell. It is never cached so new deploys are
// picked up immediately; hashed assets carry their own caching.
func (h *spaHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	data, err := fs.ReadFile(h.fsys, h.index)
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, h.index, time.Time{}, bytes.NewReader(placeholderPage))
		return
	}

	var modTime time.Time
	if info, err := fs.Stat(h.fsys, h.index); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, h.index, modTime, bytes.NewReader(data))
}

var placeholderPage = []byte(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Stamp Picker</title>
<style>
  body { font-family: system-ui, sans-serif; background: #0a0a0a; color: #fff; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; }
  .container { text-align: center; padding: 48px; }
  h1 { font-size: 24px; margin-bottom: 16px; }
  p { color: #9ca3af; margin-bottom: 24px; }
  a { color: #22c55e; text-decoration: none; font-family: monospace; }
  a:hover { text-decoration: underline; }
</style>
</head>
<body>
<div class="container">
  <h1>Stamp Picker</h1>
  <p>Frontend not built. Run the frontend build into the static directory. API:</p>
  <a href="/api/stamps">/api/stamps</a> &nbsp;|&nbsp;
  <a href="/api/me">/api/me</a>
</div>
</body>
</html>`)
