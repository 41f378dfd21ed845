package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/editor"
	"github.com/petervdpas/scribe/internal/files"
	"github.com/petervdpas/scribe/internal/format"
	"github.com/petervdpas/scribe/internal/preview"
)

// maxBody caps JSON request bodies. Whole documents travel through
// /api/update, so this is generous.
const maxBody = 16 << 20

// Deps are the stores the HTTP surface exposes. Format may be nil when
// formatter hooks are disabled, Activity when the feed is off.
type Deps struct {
	Editor   *editor.Store
	Files    *files.Store
	Format   *format.Engine
	Preview  *preview.Renderer
	Hub      *Hub
	Activity *Activity
}

func handleGet(mux *http.ServeMux, path string, fn http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	})
}

// handlePost decodes the JSON body into T before calling fn.
func handlePost[T any](mux *http.ServeMux, path string, fn func(http.ResponseWriter, *http.Request, T)) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req T
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
		fn(w, r, req)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, files.ErrNotFound), errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, files.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, content.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, files.ErrIsFolder), errors.Is(err, files.ErrNotDir), errors.Is(err, files.ErrBadMove),
		errors.Is(err, content.ErrOutsideRoot), errors.Is(err, content.ErrEmptyPath):
		return http.StatusBadRequest
	case errors.Is(err, format.ErrNoFormatter):
		return http.StatusUnprocessableEntity
	case errors.Is(err, format.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, format.ErrMemoryLimit):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}
