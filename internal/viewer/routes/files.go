package routes

import (
	"net/http"
	"sort"

	"github.com/petervdpas/scribe/internal/content"
	"github.com/petervdpas/scribe/internal/files"
)

type treeRow struct {
	Path           string           `json:"path"`
	Type           files.DirentType `json:"type"`
	IsBinary       bool             `json:"isBinary,omitempty"`
	IsLocked       bool             `json:"isLocked,omitempty"`
	LockedByFolder string           `json:"lockedByFolder,omitempty"`
}

type lockRequest struct {
	Path   string `json:"path"`
	Folder bool   `json:"folder"`
}

// RegisterFiles exposes the workspace tree, locks and modification
// tracking.
func RegisterFiles(mux *http.ServeMux, d Deps) {
	fs := d.Files

	// GET /api/files lists the tree without file contents.
	handleGet(mux, "/api/files", func(w http.ResponseWriter, r *http.Request) {
		all := fs.Files.Get()
		rows := make([]treeRow, 0, len(all))
		for p, e := range all {
			if e == nil {
				continue
			}
			rows = append(rows, treeRow{
				Path:           p,
				Type:           e.Type,
				IsBinary:       e.IsBinary,
				IsLocked:       e.IsLocked,
				LockedByFolder: e.LockedByFolder,
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
		writeJSON(w, map[string]any{"count": fs.FilesCount(), "entries": rows})
	})

	handlePost(mux, "/api/lock", func(w http.ResponseWriter, r *http.Request, req lockRequest) {
		path := content.NormalizeRel(req.Path)
		var err error
		if req.Folder {
			err = fs.LockFolder(path)
		} else {
			err = fs.LockFile(path)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActLock, path, kindOf(req.Folder))
		writeJSON(w, map[string]any{"path": path, "locked": true})
	})

	handlePost(mux, "/api/unlock", func(w http.ResponseWriter, r *http.Request, req lockRequest) {
		path := content.NormalizeRel(req.Path)
		var err error
		if req.Folder {
			err = fs.UnlockFolder(path)
		} else {
			err = fs.UnlockFile(path)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActUnlock, path, kindOf(req.Folder))
		locked := fs.IsFileLocked(path)
		if req.Folder {
			locked = fs.IsFolderLocked(path)
		}
		writeJSON(w, map[string]any{"path": path, "locked": locked})
	})

	handleGet(mux, "/api/modifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, fs.GetFileModifications())
	})

	handlePost(mux, "/api/modifications/reset", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		fs.ResetFileModifications()
		w.WriteHeader(http.StatusNoContent)
	})

	handlePost(mux, "/api/files/create", func(w http.ResponseWriter, r *http.Request, req struct {
		Path    string `json:"path"`
		Folder  bool   `json:"folder"`
		Content string `json:"content"`
	}) {
		path := content.NormalizeRel(req.Path)
		var err error
		if req.Folder {
			err = fs.CreateFolder(r.Context(), path)
		} else {
			err = fs.CreateFile(r.Context(), path, req.Content)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActCreate, path, kindOf(req.Folder))
		writeJSONStatus(w, http.StatusCreated, map[string]string{"path": path})
	})

	handlePost(mux, "/api/files/delete", func(w http.ResponseWriter, r *http.Request, req struct {
		Path   string `json:"path"`
		Folder bool   `json:"folder"`
	}) {
		path := content.NormalizeRel(req.Path)
		var err error
		if req.Folder {
			err = fs.DeleteFolder(r.Context(), path)
		} else {
			err = fs.DeleteFile(r.Context(), path)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActDelete, path, kindOf(req.Folder))
		w.WriteHeader(http.StatusNoContent)
	})

	handlePost(mux, "/api/files/rename", func(w http.ResponseWriter, r *http.Request, req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}) {
		from, to := content.NormalizeRel(req.From), content.NormalizeRel(req.To)
		if err := fs.Rename(r.Context(), from, to); err != nil {
			writeError(w, err)
			return
		}
		d.Activity.Record(ActRename, from, to)
		writeJSON(w, map[string]string{"path": to})
	})
}

func kindOf(folder bool) string {
	if folder {
		return "folder"
	}
	return "file"
}
