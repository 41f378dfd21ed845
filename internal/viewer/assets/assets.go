// Package assets embeds the browser editor: the page template, its script
// and stylesheet. Script and stylesheet are minified once at startup.
package assets

import (
	"embed"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

//go:embed index.html editor.js app.css
var rawFS embed.FS

var (
	minified map[string][]byte
	page     = template.Must(template.ParseFS(rawFS, "index.html"))
)

var mimeTypes = map[string]string{
	".js":  "application/javascript",
	".css": "text/css",
}

func init() {
	m := minify.New()
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("text/css", css.Minify)

	minified = make(map[string][]byte)

	_ = fs.WalkDir(rawFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		mediaType, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		raw, err := rawFS.ReadFile(path)
		if err != nil {
			return nil
		}
		out, err := m.Bytes(mediaType, raw)
		if err != nil {
			log.Printf("ASSETS: minify warning: %s: %v (using original)", path, err)
			minified[path] = raw
			return nil
		}
		minified[path] = out
		return nil
	})
}

// PageData fills the editor page template.
type PageData struct {
	Title     string
	Workspace string
	Version   string
}

// RenderPage writes the editor page.
func RenderPage(w http.ResponseWriter, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
	}
}

// Handler serves the minified script and stylesheet. Mount it at /assets/
// with a StripPrefix.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		data, ok := minified[path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", mimeTypes[filepath.Ext(path)]+"; charset=utf-8")
		w.Write(data)
	})
}
