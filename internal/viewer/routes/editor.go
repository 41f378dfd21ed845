package routes

import (
	"fmt"
	"net/http"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/preview"
)

type updateResponse struct {
	Path          string `json:"path"`
	Outcome       string `json:"outcome"`
	FailedPatches int    `json:"failed_patches"`
}

func newUpdateResponse(path string, res editor.UpdateResult) updateResponse {
	return updateResponse{Path: path, Outcome: res.Outcome.String(), FailedPatches: res.FailedPatches}
}

// updateStatus is 200 for everything except edits refused outright.
func updateStatus(res editor.UpdateResult) int {
	switch res.Outcome {
	case editor.Locked:
		return http.StatusLocked
	case editor.Missing:
		return http.StatusNotFound
	case editor.Binary:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusOK
	}
}

// RegisterEditor exposes the editor store: documents, selection, scroll
// and edits.
func RegisterEditor(mux *http.ServeMux, d Deps) {
	ed := d.Editor

	handleGet(mux, "/api/documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ed.Documents.Get())
	})

	handleGet(mux, "/api/current", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"selected": ed.SelectedFile.Get(),
			"document": ed.CurrentDocument.Get(),
		})
	})

	handlePost(mux, "/api/select", func(w http.ResponseWriter, r *http.Request, req struct {
		Path string `json:"path"`
	}) {
		ed.SetSelectedFile(content.NormalizeRel(req.Path))
		writeJSON(w, map[string]string{"selected": ed.SelectedFile.Get()})
	})

	handlePost(mux, "/api/scroll", func(w http.ResponseWriter, r *http.Request, req struct {
		Path string  `json:"path"`
		X    float64 `json:"x"`
		Y    float64 `json:"y"`
	}) {
		ed.UpdateScrollPosition(content.NormalizeRel(req.Path), editor.ScrollPosition{X: req.X, Y: req.Y})
		w.WriteHeader(http.StatusNoContent)
	})

	handlePost(mux, "/api/update", func(w http.ResponseWriter, r *http.Request, req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}) {
		path := content.NormalizeRel(req.Path)
		res := ed.UpdateFile(path, req.Content)
		d.Activity.Record(ActUpdate, path, res.Outcome.String())
		writeJSONStatus(w, updateStatus(res), newUpdateResponse(path, res))
	})

	// POST /api/save writes the editor's current text for path to disk.
	handlePost(mux, "/api/save", func(w http.ResponseWriter, r *http.Request, req struct {
		Path string `json:"path"`
	}) {
		path := content.NormalizeRel(req.Path)
		doc, ok := ed.Documents.Lookup(path)
		if !ok {
			http.Error(w, "document not open", http.StatusNotFound)
			return
		}
		if doc.IsBinary {
			http.Error(w, "binary documents cannot be saved from the editor", http.StatusUnsupportedMediaType)
			return
		}
		if err := d.Files.SaveFile(r.Context(), path, doc.Value); err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActSave, path, "")
		writeJSON(w, map[string]string{"path": path})
	})

	// POST /api/format runs the formatter and reconciles its output like any
	// other edit.
	handlePost(mux, "/api/format", func(w http.ResponseWriter, r *http.Request, req struct {
		Path string `json:"path"`
	}) {
		if d.Format == nil {
			http.Error(w, "formatting disabled", http.StatusServiceUnavailable)
			return
		}
		path := content.NormalizeRel(req.Path)
		doc, ok := ed.Documents.Lookup(path)
		if !ok {
			http.Error(w, "document not open", http.StatusNotFound)
			return
		}
		out, err := d.Format.Format(r.Context(), path, doc.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		res := ed.UpdateFile(path, out)
		d.Activity.Record(ActFormat, path, res.Outcome.String())
		writeJSONStatus(w, updateStatus(res), newUpdateResponse(path, res))
	})

	handleGet(mux, "/api/preview", func(w http.ResponseWriter, r *http.Request) {
		path := content.NormalizeRel(r.URL.Query().Get("path"))
		if !preview.IsMarkdown(path) {
			http.Error(w, "preview is only available for markdown", http.StatusUnsupportedMediaType)
			return
		}
		doc, ok := ed.Documents.Lookup(path)
		if !ok {
			http.Error(w, "document not open", http.StatusNotFound)
			return
		}
		out, err := d.Preview.Render(doc.Value)
		if err != nil {
			writeError(w, fmt.Errorf("render preview: %w", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	})
}
