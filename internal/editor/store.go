// Package editor keeps the in-memory state of open documents: their text,
// scroll positions and the current selection, and reconciles edits coming
// from the browser into that state.
package editor

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/scribe/internal/files"
	"github.com/petervdpas/scribe/internal/state"
)

var log = logging.Logger("editor")

// FileLockProvider answers lock queries for a path. A nil file means the
// path is unknown and therefore not locked.
type FileLockProvider interface {
	GetFile(path string) *files.File
}

// Outcome tells how UpdateFile handled an incoming change.
type Outcome int

const (
	Applied Outcome = iota
	Unchanged
	Missing
	Locked
	Binary
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Unchanged:
		return "unchanged"
	case Missing:
		return "missing"
	case Locked:
		return "locked"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// UpdateResult reports what UpdateFile did. It is informational: every
// outcome leaves the store consistent.
type UpdateResult struct {
	Outcome       Outcome `json:"-"`
	FailedPatches int     `json:"failed_patches"`
}

// Store owns the document registry and the selection for one editor.
// Each public operation runs to completion before the next one starts.
type Store struct {
	mu      sync.Mutex
	files   FileLockProvider
	patcher Patcher

	// synced is the file snapshot the registry was last built or synced from.
	synced files.FileMap

	SelectedFile    *state.Atom[string]
	Documents       *state.Map[Document]
	CurrentDocument *state.Computed[*Document]
}

type options struct {
	docs     Documents
	selected string
	patcher  Patcher
}

// Option configures NewStore.
type Option func(*options)

// WithInitialState seeds the registry and the selection.
func WithInitialState(docs Documents, selected string) Option {
	return func(o *options) {
		o.docs = docs
		o.selected = selected
	}
}

// WithPatcher replaces the default diff-match-patch reconciler.
func WithPatcher(p Patcher) Option {
	return func(o *options) { o.patcher = p }
}

// NewStore returns an editor store that consults lockProvider before every
// edit. lockProvider may be nil, in which case nothing is ever locked.
func NewStore(lockProvider FileLockProvider, opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.patcher == nil {
		o.patcher = NewDiffMatchPatch(PatchOptions{})
	}

	seed := make(Documents, len(o.docs))
	for path, doc := range o.docs {
		doc.FilePath = path
		seed[path] = doc
	}

	s := &Store{
		files:        lockProvider,
		patcher:      o.patcher,
		SelectedFile: state.NewAtom(o.selected),
		Documents:    state.NewMap(seed),
	}
	s.CurrentDocument = state.Compute2[Documents, string, *Document](
		s.Documents, state.Trigger(s.Documents.Listen),
		s.SelectedFile, state.Trigger(s.SelectedFile.Listen),
		currentDocument,
		sameDocument,
	)
	return s
}

func currentDocument(docs Documents, selected string) *Document {
	if selected == "" {
		return nil
	}
	doc, ok := docs[selected]
	if !ok {
		return nil
	}
	return &doc
}

// Close detaches the current-document projection from its inputs.
func (s *Store) Close() {
	s.CurrentDocument.Stop()
}

// SetDocuments rebuilds the registry from a file snapshot. Only file entries
// survive; a path that was already open keeps its scroll position while
// content and binary flag come from the snapshot.
func (s *Store) SetDocuments(snapshot files.FileMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synced = snapshot
	previous := s.Documents.Get()
	next := make(Documents, len(snapshot))
	for path, dirent := range snapshot {
		if !dirent.IsFile() {
			continue
		}
		doc := Document{
			Value:    dirent.Content,
			FilePath: path,
			IsBinary: dirent.IsBinary,
		}
		if prev, ok := previous[path]; ok {
			doc.Scroll = prev.Scroll
		}
		next[path] = doc
	}
	s.Documents.Set(next)
}

// SyncDocuments is SetDocuments for a tree that changed underneath open
// documents. A document whose file content is the same as in the previous
// snapshot keeps its in-memory value, so lock changes and edits to other
// files do not discard unsaved edits. Nothing is published when the
// resulting registry is unchanged.
func (s *Store) SyncDocuments(snapshot files.FileMap) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevFiles := s.synced
	s.synced = snapshot
	previous := s.Documents.Get()
	next := make(Documents, len(snapshot))
	changed := false
	for path, dirent := range snapshot {
		if !dirent.IsFile() {
			continue
		}
		doc := Document{
			Value:    dirent.Content,
			FilePath: path,
			IsBinary: dirent.IsBinary,
		}
		if prev, ok := previous[path]; ok {
			doc.Scroll = prev.Scroll
			if old := prevFiles[path]; old.IsFile() && old.Content == dirent.Content && old.IsBinary == dirent.IsBinary {
				doc.Value = prev.Value
			}
			changed = changed || !prev.Equal(doc)
		} else {
			changed = true
		}
		next[path] = doc
	}
	if !changed && len(next) == len(previous) {
		return
	}
	s.Documents.Set(next)
}

// SetSelectedFile selects path. The empty string clears the selection. The
// path does not have to be open.
func (s *Store) SetSelectedFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SelectedFile.Set(path)
}

func (s *Store) UpdateScrollPosition(path string, position ScrollPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.Documents.Lookup(path)
	if !ok {
		return
	}
	doc.Scroll = &position
	s.Documents.SetKey(path, doc)
}

// UpdateFile reconciles newContent into the document at path by patching
// the stored text instead of overwriting it.
func (s *Store) UpdateFile(path, newContent string) UpdateResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.Documents.Lookup(path)
	if !ok {
		return UpdateResult{Outcome: Missing}
	}

	if s.isLocked(path) {
		log.Warnf("Attempted to update locked file: %s", path)
		return UpdateResult{Outcome: Locked}
	}

	if doc.Value == newContent {
		return UpdateResult{Outcome: Unchanged}
	}

	if doc.IsBinary {
		log.Warnf("Attempted text update of binary file: %s", path)
		return UpdateResult{Outcome: Binary}
	}

	patched, applied := s.patcher.Patch(doc.Value, newContent)
	failed := 0
	for i, ok := range applied {
		if !ok {
			failed++
			log.Warnw("patch failed to apply", "path", path, "patch_index", i)
		}
	}

	doc.Value = patched
	s.Documents.SetKey(path, doc)
	return UpdateResult{Outcome: Applied, FailedPatches: failed}
}

func (s *Store) isLocked(path string) bool {
	if s.files == nil {
		return false
	}
	f := s.files.GetFile(path)
	return f != nil && f.IsLocked
}
