package routes

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/petervdpas/scribe/internal/content"
)

// contentTypeForPath returns a browser-safe Content-Type for a workspace
// file. Script and style types are fixed so browsers never refuse them.
func contentTypeForPath(rel string, data []byte) string {
	ext := strings.ToLower(path.Ext(rel))

	switch ext {
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "application/javascript; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".md", ".markdown":
		return "text/markdown; charset=utf-8"
	}

	if ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	return http.DetectContentType(data)
}

// RegisterRaw serves files as they are on disk, for documents the editor
// cannot show.
func RegisterRaw(mux *http.ServeMux, d Deps) {
	// GET /api/raw?path=...
	handleGet(mux, "/api/raw", func(w http.ResponseWriter, r *http.Request) {
		rel := content.NormalizeRel(r.URL.Query().Get("path"))
		b, etag, err := d.Files.ReadRaw(r.Context(), rel)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentTypeForPath(rel, b))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Scribe-ETag", etag)
		_, _ = w.Write(b)
	})
}
